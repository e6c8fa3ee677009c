// Lifecycle timeline: a queryable record of everything a borg did.
//
// Genome parses, phenotype builds, organ calls, ledger movements, and
// chain anchors all land here, indexed by borg address.
package observability

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/borglife-labs/borglife/pkg/canonical"
)

// TimelineEntryType categorizes lifecycle entries.
type TimelineEntryType string

const (
	EntryTypeGenome    TimelineEntryType = "GENOME"
	EntryTypeBuild     TimelineEntryType = "BUILD"
	EntryTypeTask      TimelineEntryType = "TASK"
	EntryTypeOrganCall TimelineEntryType = "ORGAN_CALL"
	EntryTypeLedger    TimelineEntryType = "LEDGER"
	EntryTypeAnchor    TimelineEntryType = "ANCHOR"
	EntryTypeShutdown  TimelineEntryType = "SHUTDOWN"
)

// TimelineEntry is a single lifecycle event.
type TimelineEntry struct {
	EntryID      string            `json:"entry_id"`
	EntryType    TimelineEntryType `json:"entry_type"`
	BorgID       string            `json:"borg_id"`
	ServiceIndex string            `json:"service_index,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	Summary      string            `json:"summary"`
	ContentHash  string            `json:"content_hash"`
	Details      map[string]any    `json:"details,omitempty"`
}

// TimelineQuery filters timeline entries.
type TimelineQuery struct {
	BorgID       string             `json:"borg_id,omitempty"`
	ServiceIndex string             `json:"service_index,omitempty"`
	EntryType    *TimelineEntryType `json:"entry_type,omitempty"`
	After        *time.Time         `json:"after,omitempty"`
	Before       *time.Time         `json:"before,omitempty"`
	Limit        int                `json:"limit,omitempty"`
}

// Timeline collects and queries lifecycle events.
type Timeline struct {
	mu      sync.RWMutex
	entries []TimelineEntry
	index   map[string][]int // borgID → entry indices
	seq     int64
	clock   func() time.Time
}

// NewTimeline creates a new timeline.
func NewTimeline() *Timeline {
	return &Timeline{
		entries: make([]TimelineEntry, 0),
		index:   make(map[string][]int),
		clock:   time.Now,
	}
}

// WithClock overrides clock for testing.
func (t *Timeline) WithClock(clock func() time.Time) *Timeline {
	t.clock = clock
	return t
}

// Record adds an entry to the timeline.
func (t *Timeline) Record(entry TimelineEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	if entry.EntryID == "" {
		entry.EntryID = fmt.Sprintf("tl-%d", t.seq)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = t.clock()
	}

	hash, err := canonical.HashValue(entry.Details)
	if err != nil {
		return err
	}
	entry.ContentHash = hash

	idx := len(t.entries)
	t.entries = append(t.entries, entry)

	if entry.BorgID != "" {
		t.index[entry.BorgID] = append(t.index[entry.BorgID], idx)
	}

	return nil
}

// Query retrieves entries matching the query.
func (t *Timeline) Query(q TimelineQuery) []TimelineEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var candidates []TimelineEntry

	if q.BorgID != "" {
		indices, ok := t.index[q.BorgID]
		if !ok {
			return nil
		}
		for _, i := range indices {
			candidates = append(candidates, t.entries[i])
		}
	} else {
		candidates = make([]TimelineEntry, len(t.entries))
		copy(candidates, t.entries)
	}

	// Apply filters
	var results []TimelineEntry
	for _, e := range candidates {
		if q.ServiceIndex != "" && e.ServiceIndex != q.ServiceIndex {
			continue
		}
		if q.EntryType != nil && e.EntryType != *q.EntryType {
			continue
		}
		if q.After != nil && e.Timestamp.Before(*q.After) {
			continue
		}
		if q.Before != nil && e.Timestamp.After(*q.Before) {
			continue
		}
		results = append(results, e)
	}

	// Sort by timestamp
	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp.Before(results[j].Timestamp)
	})

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}

	return results
}

// Count returns total entries.
func (t *Timeline) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
