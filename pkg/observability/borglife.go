// Borg-specific instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Borg-specific semantic convention attributes.
var (
	// Borg identity attributes
	AttrBorgID       = attribute.Key("borglife.borg.id")
	AttrServiceIndex = attribute.Key("borglife.service_index")
	AttrGenomeHash   = attribute.Key("borglife.genome.hash")

	// Organ invocation attributes
	AttrOrganName    = attribute.Key("borglife.organ.name")
	AttrCapabilityID = attribute.Key("borglife.organ.capability_id")
	AttrBreakerState = attribute.Key("borglife.organ.breaker_state")
	AttrDebitAmount  = attribute.Key("borglife.organ.debit")

	// Cell execution attributes
	AttrCellName  = attribute.Key("borglife.cell.name")
	AttrLogicType = attribute.Key("borglife.cell.logic_type")

	// Ledger attributes
	AttrLedgerKind     = attribute.Key("borglife.ledger.kind")
	AttrLedgerCurrency = attribute.Key("borglife.ledger.currency")

	// Chain anchoring attributes
	AttrChainEpoch = attribute.Key("borglife.chain.epoch")
	AttrRecordKind = attribute.Key("borglife.chain.record_kind")
)

// OrganCall creates attributes for an organ invocation.
func OrganCall(borgID, organName, capabilityID, breakerState string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrBorgID.String(borgID),
		AttrOrganName.String(organName),
		AttrCapabilityID.String(capabilityID),
		AttrBreakerState.String(breakerState),
	}
}

// CellExecution creates attributes for a task run inside one cell.
func CellExecution(borgID, cellName, logicType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrBorgID.String(borgID),
		AttrCellName.String(cellName),
		AttrLogicType.String(logicType),
	}
}

// LedgerOperation creates attributes for a ledger mutation.
func LedgerOperation(borgID, kind, currency, amount string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrBorgID.String(borgID),
		AttrLedgerKind.String(kind),
		AttrLedgerCurrency.String(currency),
		AttrDebitAmount.String(amount),
	}
}

// ChainSubmission creates attributes for a settlement record submission.
func ChainSubmission(borgID, recordKind string, epoch int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrBorgID.String(borgID),
		AttrRecordKind.String(recordKind),
		AttrChainEpoch.Int64(epoch),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus sets the span status based on error.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
