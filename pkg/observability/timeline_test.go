package observability

import (
	"strings"
	"testing"
	"time"
)

func TestTimelineRecord(t *testing.T) {
	tl := NewTimeline()
	err := tl.Record(TimelineEntry{
		EntryType: EntryTypeBuild,
		BorgID:    "borg-1",
		Summary:   "phenotype built",
	})
	if err != nil {
		t.Fatal(err)
	}
	if tl.Count() != 1 {
		t.Fatalf("expected 1, got %d", tl.Count())
	}
}

func TestTimelineQueryByBorg(t *testing.T) {
	tl := NewTimeline()
	tl.Record(TimelineEntry{EntryType: EntryTypeGenome, BorgID: "borg-1", Summary: "a"})
	tl.Record(TimelineEntry{EntryType: EntryTypeOrganCall, BorgID: "borg-1", Summary: "b"})
	tl.Record(TimelineEntry{EntryType: EntryTypeGenome, BorgID: "borg-2", Summary: "c"})

	results := tl.Query(TimelineQuery{BorgID: "borg-1"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results for borg-1, got %d", len(results))
	}
}

func TestTimelineQueryByType(t *testing.T) {
	tl := NewTimeline()
	tl.Record(TimelineEntry{EntryType: EntryTypeGenome, BorgID: "borg-1", Summary: "a"})
	tl.Record(TimelineEntry{EntryType: EntryTypeLedger, BorgID: "borg-1", Summary: "b"})
	tl.Record(TimelineEntry{EntryType: EntryTypeAnchor, BorgID: "borg-1", Summary: "c"})

	entryType := EntryTypeLedger
	results := tl.Query(TimelineQuery{BorgID: "borg-1", EntryType: &entryType})
	if len(results) != 1 {
		t.Fatalf("expected 1 LEDGER, got %d", len(results))
	}
}

func TestTimelineQueryByTimeRange(t *testing.T) {
	tl := NewTimeline()
	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	t3 := time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC)

	tl.Record(TimelineEntry{EntryType: EntryTypeTask, Timestamp: t1, Summary: "early"})
	tl.Record(TimelineEntry{EntryType: EntryTypeTask, Timestamp: t2, Summary: "mid"})
	tl.Record(TimelineEntry{EntryType: EntryTypeTask, Timestamp: t3, Summary: "late"})

	after := time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC)
	before := time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)
	results := tl.Query(TimelineQuery{After: &after, Before: &before})
	if len(results) != 1 {
		t.Fatalf("expected 1 entry in range, got %d", len(results))
	}
	if results[0].Summary != "mid" {
		t.Fatalf("expected 'mid', got %s", results[0].Summary)
	}
}

func TestTimelineQueryLimit(t *testing.T) {
	tl := NewTimeline()
	for i := 0; i < 10; i++ {
		tl.Record(TimelineEntry{EntryType: EntryTypeTask, Summary: "x"})
	}

	results := tl.Query(TimelineQuery{Limit: 3})
	if len(results) != 3 {
		t.Fatalf("expected 3, got %d", len(results))
	}
}

func TestTimelineContentHash(t *testing.T) {
	tl := NewTimeline()
	tl.Record(TimelineEntry{
		EntryType: EntryTypeAnchor,
		Summary:   "genome hash anchored",
		Details:   map[string]any{"hash": "abc"},
	})

	results := tl.Query(TimelineQuery{})
	if !strings.HasPrefix(results[0].ContentHash, "blake2b-256:") {
		t.Fatalf("unexpected content hash %q", results[0].ContentHash)
	}
}

func TestTimelineQueryByServiceIndex(t *testing.T) {
	tl := NewTimeline()
	tl.Record(TimelineEntry{EntryType: EntryTypeTask, ServiceIndex: "svc-1", Summary: "a"})
	tl.Record(TimelineEntry{EntryType: EntryTypeTask, ServiceIndex: "svc-2", Summary: "b"})
	tl.Record(TimelineEntry{EntryType: EntryTypeTask, ServiceIndex: "svc-1", Summary: "c"})

	results := tl.Query(TimelineQuery{ServiceIndex: "svc-1"})
	if len(results) != 2 {
		t.Fatalf("expected 2 for svc-1, got %d", len(results))
	}
}
