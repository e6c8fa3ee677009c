// Package organs implements the cell-organ bridge: descriptor discovery,
// the host transport, and metered invocation of external capabilities.
package organs

import (
	"fmt"

	"github.com/borglife-labs/borglife/pkg/wealth"
)

// OrganError reports a failed capability call. It wraps the transport
// cause so callers can distinguish timeouts from protocol failures.
type OrganError struct {
	Organ        string
	CapabilityID string
	Reason       string
	cause        error
}

func (e *OrganError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("organ %s (%s): %s: %v", e.Organ, e.CapabilityID, e.Reason, e.cause)
	}
	return fmt.Sprintf("organ %s (%s): %s", e.Organ, e.CapabilityID, e.Reason)
}

func (e *OrganError) Unwrap() error { return e.cause }

// ABIIncompatibleError reports a genome organ whose declared ABI version
// the host does not serve.
type ABIIncompatibleError struct {
	Organ     string
	Required  string
	Supported string
}

func (e *ABIIncompatibleError) Error() string {
	return fmt.Sprintf("organ %s: genome requires ABI %s, host serves %s", e.Organ, e.Required, e.Supported)
}

// PriceCapError reports a pre-flight rejection: the estimated cost of an
// invocation exceeds the organ's price cap. Nothing is billed.
type PriceCapError struct {
	Organ     string
	Estimated wealth.Amount
	Cap       wealth.Amount
}

func (e *PriceCapError) Error() string {
	return fmt.Sprintf("organ %s: estimated cost %s exceeds price cap %s",
		e.Organ, e.Estimated, e.Cap)
}
