package wealth

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind categorizes a ledger entry.
type Kind string

const (
	KindFunding Kind = "funding"
	KindDebit   Kind = "debit"
	KindCredit  Kind = "credit"
	// KindTransfer marks the outgoing side of a transfer; the incoming side
	// is recorded as a credit with the sender as counterparty.
	KindTransfer Kind = "transfer"
)

// Entry is an immutable, append-only ledger record. BalanceAfter captures the
// derived account balance at append time; the balance itself is never stored
// as a mutable field.
type Entry struct {
	ID             string    `json:"id"`
	BorgID         string    `json:"borg_id"`
	Kind           Kind      `json:"kind"`
	Amount         Amount    `json:"amount"`
	CounterpartyID string    `json:"counterparty_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	BalanceAfter   Amount    `json:"balance_after"`
}

// Sink is the durability collaborator: an append-only store that persists
// entries. The ledger treats it as storage only and performs no business
// logic there.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// BatchSink is implemented by sinks that can persist several entries
// atomically. Transfer uses it so the two halves of a transfer are never
// durable separately.
type BatchSink interface {
	Sink
	AppendBatch(ctx context.Context, entries []Entry) error
}

// InsufficientFundsError is returned when a debit or transfer would overdraw
// an account. No entry is appended.
type InsufficientFundsError struct {
	BorgID    string
	Currency  string
	Requested Amount
	Available Amount
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("wealth: insufficient funds for borg %s: requested %s %s, available %s %s",
		e.BorgID, e.Requested.String(), e.Currency, e.Available.String(), e.Currency)
}

type accountKey struct {
	borgID   string
	currency string
}

// account holds the linearized entry log for one (borgID, currency) pair.
// Its mutex is the critical section every balance check and append runs under.
type account struct {
	mu      sync.Mutex
	entries []Entry
}

// balance derives the running sum of signed entries. Debits and outgoing
// transfers subtract; funding and credits add. Callers hold a.mu.
func (a *account) balance(currency string) Amount {
	total := Zero(currency)
	for _, e := range a.entries {
		switch e.Kind {
		case KindDebit, KindTransfer:
			total.MinorUnits -= e.Amount.MinorUnits
		default:
			total.MinorUnits += e.Amount.MinorUnits
		}
	}
	return total
}

// Ledger is the exact-precision balance and transaction log for all borgs.
// It is the single source of truth: no component keeps a private balance cache.
type Ledger struct {
	mu       sync.Mutex
	accounts map[accountKey]*account
	sink     Sink
	clock    func() time.Time
	logger   *slog.Logger
}

// NewLedger creates an empty ledger. sink may be nil for in-memory operation.
func NewLedger(sink Sink, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		accounts: make(map[accountKey]*account),
		sink:     sink,
		clock:    time.Now,
		logger:   logger.With("component", "wealth.ledger"),
	}
}

// WithClock overrides the clock for testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

func (l *Ledger) acct(borgID, currency string) *account {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := accountKey{borgID, currency}
	a, ok := l.accounts[k]
	if !ok {
		a = &account{}
		l.accounts[k] = a
	}
	return a
}

// Balance returns the derived balance for (borgID, currency).
func (l *Ledger) Balance(borgID, currency string) Amount {
	a := l.acct(borgID, currency)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance(currency)
}

// Entries returns a copy of the entry log for (borgID, currency).
func (l *Ledger) Entries(borgID, currency string) []Entry {
	a := l.acct(borgID, currency)
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Fund credits an account from an external funding source.
func (l *Ledger) Fund(ctx context.Context, borgID string, amount Amount, reason string) (Entry, error) {
	return l.credit(ctx, borgID, amount, KindFunding, "", reason)
}

// Credit appends a credit entry. Amount must be positive.
func (l *Ledger) Credit(ctx context.Context, borgID string, amount Amount, reason string) (Entry, error) {
	return l.credit(ctx, borgID, amount, KindCredit, "", reason)
}

// Debit appends a debit entry after an exact-decimal balance check.
// Rejects with *InsufficientFundsError if the balance is lower than amount.
func (l *Ledger) Debit(ctx context.Context, borgID string, amount Amount, reason string) (Entry, error) {
	if err := validateAmount(amount); err != nil {
		return Entry{}, err
	}
	a := l.acct(borgID, amount.Currency)
	a.mu.Lock()
	defer a.mu.Unlock()
	return l.appendDebit(ctx, a, borgID, amount, KindDebit, "", reason)
}

// Transfer atomically moves amount from one borg to another. Either both
// entries are appended or neither is. The sender's account lock is held for
// the whole balance check and double append, so a concurrent debit can never
// race the insufficient-funds check.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID string, amount Amount) (Entry, Entry, error) {
	if err := validateAmount(amount); err != nil {
		return Entry{}, Entry{}, err
	}
	if fromID == toID {
		return Entry{}, Entry{}, fmt.Errorf("wealth: transfer to self (%s)", fromID)
	}

	from := l.acct(fromID, amount.Currency)
	to := l.acct(toID, amount.Currency)

	// Lock both accounts in a deterministic order so concurrent opposite
	// transfers cannot deadlock.
	first, second := from, to
	if orderKey(toID, amount.Currency) < orderKey(fromID, amount.Currency) {
		first, second = to, from
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	balance := from.balance(amount.Currency)
	if balance.MinorUnits < amount.MinorUnits {
		return Entry{}, Entry{}, &InsufficientFundsError{
			BorgID: fromID, Currency: amount.Currency, Requested: amount, Available: balance,
		}
	}

	now := l.clock()
	debitAfter, _ := balance.Sub(amount)
	out := Entry{
		ID: uuid.NewString(), BorgID: fromID, Kind: KindTransfer, Amount: amount,
		CounterpartyID: toID, Reason: "transfer out", Timestamp: now, BalanceAfter: debitAfter,
	}
	creditBefore := to.balance(amount.Currency)
	creditAfter, _ := creditBefore.Add(amount)
	in := Entry{
		ID: uuid.NewString(), BorgID: toID, Kind: KindCredit, Amount: amount,
		CounterpartyID: fromID, Reason: "transfer in", Timestamp: now, BalanceAfter: creditAfter,
	}

	if err := l.persistPair(ctx, out, in); err != nil {
		return Entry{}, Entry{}, err
	}
	from.entries = append(from.entries, out)
	to.entries = append(to.entries, in)

	l.logger.Info("transfer settled",
		slog.String("from", fromID), slog.String("to", toID),
		slog.String("amount", amount.String()), slog.String("currency", amount.Currency))
	return out, in, nil
}

func (l *Ledger) credit(ctx context.Context, borgID string, amount Amount, kind Kind, counterparty, reason string) (Entry, error) {
	if err := validateAmount(amount); err != nil {
		return Entry{}, err
	}
	a := l.acct(borgID, amount.Currency)
	a.mu.Lock()
	defer a.mu.Unlock()

	after, _ := a.balance(amount.Currency).Add(amount)
	e := Entry{
		ID: uuid.NewString(), BorgID: borgID, Kind: kind, Amount: amount,
		CounterpartyID: counterparty, Reason: reason, Timestamp: l.clock(), BalanceAfter: after,
	}
	if err := l.persist(ctx, e); err != nil {
		return Entry{}, err
	}
	a.entries = append(a.entries, e)
	return e, nil
}

// appendDebit runs under the account lock held by the caller.
func (l *Ledger) appendDebit(ctx context.Context, a *account, borgID string, amount Amount, kind Kind, counterparty, reason string) (Entry, error) {
	balance := a.balance(amount.Currency)
	if balance.MinorUnits < amount.MinorUnits {
		return Entry{}, &InsufficientFundsError{
			BorgID: borgID, Currency: amount.Currency, Requested: amount, Available: balance,
		}
	}
	after, _ := balance.Sub(amount)
	e := Entry{
		ID: uuid.NewString(), BorgID: borgID, Kind: kind, Amount: amount,
		CounterpartyID: counterparty, Reason: reason, Timestamp: l.clock(), BalanceAfter: after,
	}
	if err := l.persist(ctx, e); err != nil {
		return Entry{}, err
	}
	a.entries = append(a.entries, e)
	return e, nil
}

// persist hands the entry to the durability sink. A sink failure aborts the
// triggering operation before it mutates in-memory state.
func (l *Ledger) persist(ctx context.Context, e Entry) error {
	if l.sink == nil {
		return nil
	}
	if err := l.sink.Append(ctx, e); err != nil {
		return fmt.Errorf("wealth: ledger sink append: %w", err)
	}
	return nil
}

// persistPair makes a transfer's two halves durable together. A BatchSink
// commits them in one operation; for a plain sink the already-persisted
// debit is reversed when the credit cannot be appended, so the durable log
// never holds a lone transfer half.
func (l *Ledger) persistPair(ctx context.Context, out, in Entry) error {
	if l.sink == nil {
		return nil
	}
	if batch, ok := l.sink.(BatchSink); ok {
		if err := batch.AppendBatch(ctx, []Entry{out, in}); err != nil {
			return fmt.Errorf("wealth: ledger sink batch append: %w", err)
		}
		return nil
	}
	if err := l.persist(ctx, out); err != nil {
		return err
	}
	if err := l.persist(ctx, in); err != nil {
		restored, _ := out.BalanceAfter.Add(out.Amount)
		reversal := Entry{
			ID: uuid.NewString(), BorgID: out.BorgID, Kind: KindCredit, Amount: out.Amount,
			CounterpartyID: out.CounterpartyID, Reason: "transfer reversal",
			Timestamp: l.clock(), BalanceAfter: restored,
		}
		if rerr := l.persist(ctx, reversal); rerr != nil {
			return fmt.Errorf("%w (reversal also failed: %v)", err, rerr)
		}
		return err
	}
	return nil
}

// Restore replays previously persisted entries into the in-memory log
// without touching the sink. Call once at startup, before the first new
// operation on the account.
func (l *Ledger) Restore(entries []Entry) {
	for _, e := range entries {
		a := l.acct(e.BorgID, e.Amount.Currency)
		a.mu.Lock()
		a.entries = append(a.entries, e)
		a.mu.Unlock()
	}
}

// Currencies reports every currency with at least one entry for a borg, sorted.
func (l *Ledger) Currencies(borgID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for k := range l.accounts {
		if k.borgID == borgID {
			out = append(out, k.currency)
		}
	}
	sort.Strings(out)
	return out
}

func validateAmount(amount Amount) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: ledger amounts must be positive, got %s", ErrInvalidAmount, amount.String())
	}
	return nil
}

func orderKey(borgID, currency string) string {
	return borgID + "\x00" + currency
}
