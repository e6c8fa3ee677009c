package genome

import (
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "https://borglife.schemas.local/genome.schema.json"

// dnaSchema is the structural contract for a genome document. Monetary
// values are decimal strings, never numbers: YAML float literals for
// cost_estimate or price_cap are a schema violation.
const dnaSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["header", "cells", "organs", "manifesto_hash"],
  "additionalProperties": false,
  "properties": {
    "header": {
      "type": "object",
      "required": ["code_length", "gas_limit", "service_index"],
      "additionalProperties": false,
      "properties": {
        "code_length": {"type": "integer", "minimum": 1},
        "gas_limit": {"type": "integer", "minimum": 1},
        "service_index": {"type": "string", "minLength": 1}
      }
    },
    "cells": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "logic_type", "cost_estimate"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "logic_type": {"type": "string", "minLength": 1},
          "parameters": {
            "type": "object",
            "additionalProperties": {"type": "string"}
          },
          "cost_estimate": {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?$"}
        }
      }
    },
    "organs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "capability_id", "endpoint", "abi_version", "price_cap"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "capability_id": {"type": "string", "minLength": 1},
          "endpoint": {"type": "string", "minLength": 1},
          "abi_version": {"type": "string", "minLength": 1},
          "price_cap": {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?$"}
        }
      }
    },
    "manifesto_hash": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
    "reputation": {
      "type": "object",
      "required": ["average_rating", "total_ratings"],
      "additionalProperties": false,
      "properties": {
        "average_rating": {"type": "number", "minimum": 0, "maximum": 5},
        "total_ratings": {"type": "integer", "minimum": 0},
        "rating_distribution": {
          "type": "object",
          "propertyNames": {"pattern": "^[1-5]$"},
          "additionalProperties": {"type": "integer", "minimum": 0}
        },
        "last_rated": {"type": "string"}
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schemaRef  *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, strings.NewReader(dnaSchema)); err != nil {
			schemaErr = err
			return
		}
		schemaRef, schemaErr = c.Compile(schemaURL)
	})
	return schemaRef, schemaErr
}
