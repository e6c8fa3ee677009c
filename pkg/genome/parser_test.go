package genome

import (
	"errors"
	"strings"
	"testing"
)

const validDNA = `
header:
  code_length: 2048
  gas_limit: 5000000
  service_index: "borg-007"
cells:
  - name: summarizer
    logic_type: rag_agent
    parameters:
      model: gpt-4o-mini
      top_k: "3"
    cost_estimate: "0.25"
  - name: router
    logic_type: decision_maker
    cost_estimate: "0.001"
organs:
  - name: web_search
    capability_id: search.query
    endpoint: https://organs.example.com/search
    abi_version: 1.2.0
    price_cap: "0.5"
manifesto_hash: a3f5b8c2d1e04976a3f5b8c2d1e04976a3f5b8c2d1e04976a3f5b8c2d1e04976
`

func TestParseValidGenome(t *testing.T) {
	g, err := Parse([]byte(validDNA))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if g.Header.ServiceIndex != "borg-007" {
		t.Errorf("service index = %q, want borg-007", g.Header.ServiceIndex)
	}
	if len(g.Cells) != 2 || len(g.Organs) != 1 {
		t.Fatalf("got %d cells, %d organs", len(g.Cells), len(g.Organs))
	}
	if g.Cells[0].LogicType != LogicRAGAgent {
		t.Errorf("logic type = %q", g.Cells[0].LogicType)
	}
	if got := g.Cells[0].CostEstimate.String(); got != "0.25" {
		t.Errorf("cost estimate = %q, want 0.25", got)
	}
	if g.Cells[0].Parameters["top_k"] != "3" {
		t.Errorf("parameters not carried: %v", g.Cells[0].Parameters)
	}
	if got := g.Organs[0].PriceCap.String(); got != "0.5" {
		t.Errorf("price cap = %q, want 0.5", got)
	}
}

func TestParseEmptyCellsAndOrgans(t *testing.T) {
	g, err := Parse([]byte(`
header:
  code_length: 1024
  gas_limit: 1000000
  service_index: seed
cells: []
organs: []
manifesto_hash: ` + strings.Repeat("ab", 32)))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(g.Cells) != 0 || len(g.Organs) != 0 {
		t.Errorf("expected empty genome, got %d cells, %d organs", len(g.Cells), len(g.Organs))
	}
}

func TestParseRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr any
	}{
		{
			name:    "empty input",
			mutate:  func(string) string { return "   \n" },
			wantErr: &ParseError{},
		},
		{
			name:    "malformed yaml",
			mutate:  func(s string) string { return "header: [unclosed" },
			wantErr: &ParseError{},
		},
		{
			name:    "float cost estimate",
			mutate:  func(s string) string { return strings.Replace(s, `cost_estimate: "0.25"`, `cost_estimate: 0.25`, 1) },
			wantErr: &SchemaError{},
		},
		{
			name:    "float price cap",
			mutate:  func(s string) string { return strings.Replace(s, `price_cap: "0.5"`, `price_cap: 0.5`, 1) },
			wantErr: &SchemaError{},
		},
		{
			name:    "zero gas limit",
			mutate:  func(s string) string { return strings.Replace(s, "gas_limit: 5000000", "gas_limit: 0", 1) },
			wantErr: &SchemaError{},
		},
		{
			name:    "negative code length",
			mutate:  func(s string) string { return strings.Replace(s, "code_length: 2048", "code_length: -1", 1) },
			wantErr: &SchemaError{},
		},
		{
			name:    "short manifesto hash",
			mutate:  func(s string) string { return strings.Replace(s, strings.Repeat("a3f5b8c2d1e04976", 4), "a3f5", 1) },
			wantErr: &SchemaError{},
		},
		{
			name:    "uppercase manifesto hash",
			mutate:  func(s string) string { return strings.Replace(s, "a3f5b8c2", "A3F5B8C2", 1) },
			wantErr: &SchemaError{},
		},
		{
			name:    "duplicate cell name",
			mutate:  func(s string) string { return strings.Replace(s, "name: router", "name: summarizer", 1) },
			wantErr: &DuplicateNameError{},
		},
		{
			name:    "bad abi version",
			mutate:  func(s string) string { return strings.Replace(s, "abi_version: 1.2.0", "abi_version: latest", 1) },
			wantErr: &SchemaError{},
		},
		{
			name:    "relative endpoint",
			mutate:  func(s string) string { return strings.Replace(s, "https://organs.example.com/search", "/search", 1) },
			wantErr: &SchemaError{},
		},
		{
			name:    "unknown top-level key",
			mutate:  func(s string) string { return s + "\nextra_field: true\n" },
			wantErr: &SchemaError{},
		},
		{
			name:    "missing header",
			mutate:  func(s string) string { return strings.Replace(s, "header:", "not_header:", 1) },
			wantErr: &SchemaError{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.mutate(validDNA)))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			switch want := tc.wantErr.(type) {
			case *ParseError:
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Errorf("want *ParseError, got %T: %v", err, err)
				}
			case *SchemaError:
				var se *SchemaError
				if !errors.As(err, &se) {
					t.Errorf("want *SchemaError, got %T: %v", err, err)
				}
			case *DuplicateNameError:
				var de *DuplicateNameError
				if !errors.As(err, &de) {
					t.Errorf("want *DuplicateNameError, got %T: %v", err, err)
				}
			default:
				t.Fatalf("unhandled want type %T", want)
			}
		})
	}
}

func TestParseDuplicateOrganName(t *testing.T) {
	doc := strings.Replace(validDNA, "manifesto_hash:", `  - name: web_search
    capability_id: search.other
    endpoint: https://organs.example.com/other
    abi_version: 2.0.0
    price_cap: "1"
manifesto_hash:`, 1)
	_, err := Parse([]byte(doc))
	var de *DuplicateNameError
	if !errors.As(err, &de) {
		t.Fatalf("want *DuplicateNameError, got %v", err)
	}
	if de.Collection != "organs" || de.Name != "web_search" {
		t.Errorf("unexpected duplicate detail: %+v", de)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	g, err := Parse([]byte(validDNA))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	raw, err := Serialize(g)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	g2, err := Parse(raw)
	if err != nil {
		t.Fatalf("re-Parse failed: %v\n%s", err, raw)
	}

	h1, err := ComputeHash(g)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := ComputeHash(g2)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("round trip changed hash: %s vs %s", h1, h2)
	}
}

func TestMinimalGenome(t *testing.T) {
	hash := strings.Repeat("cd", 32)
	g := MinimalGenome("seed-1", hash)
	raw, err := Serialize(g)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	g2, err := Parse(raw)
	if err != nil {
		t.Fatalf("minimal genome does not validate: %v", err)
	}
	if g2.Header.ServiceIndex != "seed-1" || g2.ManifestoHash != hash {
		t.Errorf("minimal genome fields lost: %+v", g2)
	}
	if len(g2.Cells) != 0 || len(g2.Organs) != 0 {
		t.Errorf("minimal genome should be empty")
	}
}

func TestMergeAppliesDeltaAndRevalidates(t *testing.T) {
	base, err := Parse([]byte(validDNA))
	if err != nil {
		t.Fatal(err)
	}

	merged, err := Merge(base, map[string]any{
		"header": map[string]any{"gas_limit": 9000000},
	})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if merged.Header.GasLimit != 9000000 {
		t.Errorf("gas limit = %d, want 9000000", merged.Header.GasLimit)
	}
	if merged.Header.CodeLength != base.Header.CodeLength {
		t.Errorf("untouched header field changed")
	}
	if base.Header.GasLimit != 5000000 {
		t.Errorf("base genome mutated")
	}

	_, err = Merge(base, map[string]any{
		"header": map[string]any{"gas_limit": -5},
	})
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Errorf("invalid merge should fail schema validation, got %v", err)
	}
}

func TestLookupHelpers(t *testing.T) {
	g, err := Parse([]byte(validDNA))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := g.CellByName("summarizer"); !ok {
		t.Error("CellByName missed existing cell")
	}
	if _, ok := g.CellByName("ghost"); ok {
		t.Error("CellByName found nonexistent cell")
	}
	if _, ok := g.OrganByName("web_search"); !ok {
		t.Error("OrganByName missed existing organ")
	}
	if names := g.CellNames(); len(names) != 2 || names[0] != "summarizer" {
		t.Errorf("CellNames = %v", names)
	}
}
