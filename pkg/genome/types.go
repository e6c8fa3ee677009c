// Package genome implements the borg DNA model: parsing, validation, and
// round-trip integrity of the declarative document that describes an agent.
package genome

import (
	"time"

	"github.com/borglife-labs/borglife/pkg/wealth"
)

// Currency is the unit all genome monetary fields are denominated in.
const Currency = wealth.WND

// LogicType tags a cell's behavior. The tag set is closed and versioned:
// unknown tags fail phenotype construction, they are never a silent no-op.
type LogicType string

const (
	LogicRAGAgent      LogicType = "rag_agent"
	LogicDecisionMaker LogicType = "decision_maker"
	LogicDataProcessor LogicType = "data_processor"
	LogicWASMCompute   LogicType = "wasm_compute"
)

// KnownLogicTypes lists every valid cell logic tag.
var KnownLogicTypes = []LogicType{LogicRAGAgent, LogicDecisionMaker, LogicDataProcessor, LogicWASMCompute}

// Header carries genome metadata and execution constraints.
type Header struct {
	CodeLength   int64  `json:"code_length"`
	GasLimit     int64  `json:"gas_limit"`
	ServiceIndex string `json:"service_index"`
}

// Cell is an individual logic unit evolved into the genome.
type Cell struct {
	Name         string            `json:"name"`
	LogicType    LogicType         `json:"logic_type"`
	Parameters   map[string]string `json:"parameters,omitempty"`
	CostEstimate wealth.Amount     `json:"cost_estimate"`
}

// Organ points at an external capability the borg may invoke.
type Organ struct {
	Name         string        `json:"name"`
	CapabilityID string        `json:"capability_id"`
	Endpoint     string        `json:"endpoint"`
	ABIVersion   string        `json:"abi_version"`
	PriceCap     wealth.Amount `json:"price_cap"`
}

// Reputation aggregates user satisfaction ratings carried in the DNA as
// evolution substrate.
type Reputation struct {
	AverageRating      float64       `json:"average_rating"`
	TotalRatings       int64         `json:"total_ratings"`
	RatingDistribution map[int]int64 `json:"rating_distribution,omitempty"`
	LastRated          *time.Time    `json:"last_rated,omitempty"`
}

// Genome is the complete DNA structure D = (H, C, O, M, R).
// It is immutable once hashed; mutation happens by deriving a new genome.
type Genome struct {
	Header        Header      `json:"header"`
	Cells         []Cell      `json:"cells"`
	Organs        []Organ     `json:"organs"`
	ManifestoHash string      `json:"manifesto_hash"`
	Reputation    *Reputation `json:"reputation,omitempty"`
}

// CellByName returns the named cell, or false if absent.
func (g *Genome) CellByName(name string) (Cell, bool) {
	for _, c := range g.Cells {
		if c.Name == name {
			return c, true
		}
	}
	return Cell{}, false
}

// OrganByName returns the named organ, or false if absent.
func (g *Genome) OrganByName(name string) (Organ, bool) {
	for _, o := range g.Organs {
		if o.Name == name {
			return o, true
		}
	}
	return Organ{}, false
}

// CellNames returns cell names in genome order.
func (g *Genome) CellNames() []string {
	out := make([]string, len(g.Cells))
	for i, c := range g.Cells {
		out[i] = c.Name
	}
	return out
}

// OrganNames returns organ names in genome order.
func (g *Genome) OrganNames() []string {
	out := make([]string, len(g.Organs))
	for i, o := range g.Organs {
		out[i] = o.Name
	}
	return out
}
