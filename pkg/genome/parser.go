package genome

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Parse decodes a YAML genome document, validates it structurally against
// the embedded schema, and raises it into the typed model. Validation is
// fail-closed: a genome that parses is a genome every other package can
// trust without re-checking.
func Parse(raw []byte) (*Genome, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &ParseError{Format: "yaml", Message: "empty document"}
	}

	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, &ParseError{Format: "yaml", Message: "malformed document", cause: err}
	}

	if err := validateDocument(generic); err != nil {
		return nil, err
	}

	var doc genomeDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &ParseError{Format: "yaml", Message: "document does not match genome shape", cause: err}
	}

	g, err := fromDoc(doc)
	if err != nil {
		return nil, err
	}
	if err := checkValues(g); err != nil {
		return nil, err
	}
	return g, nil
}

// validateDocument runs the generic document through the JSON Schema. The
// YAML value is re-encoded as JSON first so the validator sees exactly the
// types encoding/json would produce.
func validateDocument(generic any) error {
	buf, err := json.Marshal(generic)
	if err != nil {
		return &ParseError{Format: "yaml", Message: "document is not representable as JSON", cause: err}
	}
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return &ParseError{Format: "json", Message: "document re-encoding failed", cause: err}
	}

	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("genome schema compile: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return schemaViolation(err)
	}
	return nil
}

// schemaViolation converts a jsonschema validation failure into a typed
// SchemaError pointing at the deepest offending location.
func schemaViolation(err error) error {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return &SchemaError{Field: "/", Message: "schema validation failed", cause: err}
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	field := leaf.InstanceLocation
	if field == "" {
		field = "/"
	}
	return &SchemaError{Field: field, Message: leaf.Message, cause: err}
}

// checkValues enforces the constraints the schema cannot express.
func checkValues(g *Genome) error {
	seenCells := make(map[string]struct{}, len(g.Cells))
	for _, c := range g.Cells {
		if _, dup := seenCells[c.Name]; dup {
			return &DuplicateNameError{Collection: "cells", Name: c.Name}
		}
		seenCells[c.Name] = struct{}{}
	}

	seenOrgans := make(map[string]struct{}, len(g.Organs))
	for _, o := range g.Organs {
		if _, dup := seenOrgans[o.Name]; dup {
			return &DuplicateNameError{Collection: "organs", Name: o.Name}
		}
		seenOrgans[o.Name] = struct{}{}

		if _, err := semver.NewVersion(o.ABIVersion); err != nil {
			return &SchemaError{Field: "organs[" + o.Name + "].abi_version", Message: "not a semantic version", cause: err}
		}
		u, err := url.Parse(o.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &SchemaError{Field: "organs[" + o.Name + "].endpoint", Message: "not an absolute URL", cause: err}
		}
	}
	return nil
}

// Serialize renders a genome back to its canonical YAML wire form. The
// output parses back to an identical genome and hashes to the same digest.
func Serialize(g *Genome) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(g.toDoc()); err != nil {
		return nil, fmt.Errorf("genome serialize: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("genome serialize: %w", err)
	}
	return buf.Bytes(), nil
}

// MinimalGenome builds the smallest viable genome for bootstrapping a new
// borg before any cells or organs have been evolved in.
func MinimalGenome(serviceIndex, manifestoHash string) *Genome {
	return &Genome{
		Header: Header{
			CodeLength:   1024,
			GasLimit:     1_000_000,
			ServiceIndex: serviceIndex,
		},
		Cells:         []Cell{},
		Organs:        []Organ{},
		ManifestoHash: manifestoHash,
	}
}

// Merge applies a partial document update to a base genome and revalidates
// the result. Nested maps merge key by key, everything else (including the
// cells and organs lists) replaces wholesale. The base genome is unchanged.
func Merge(base *Genome, delta map[string]any) (*Genome, error) {
	raw, err := Serialize(base)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("genome merge: %w", err)
	}
	deepMerge(doc, delta)
	merged, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("genome merge: %w", err)
	}
	return Parse(merged)
}

func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				deepMerge(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
}
