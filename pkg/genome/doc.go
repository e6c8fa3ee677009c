package genome

import (
	"time"

	"github.com/borglife-labs/borglife/pkg/wealth"
)

// genomeDoc is the wire-level document form of a genome. Monetary values
// are canonical decimal strings so the document round-trips through both
// YAML and canonical JSON without floating-point drift.
type genomeDoc struct {
	Header        headerDoc      `yaml:"header" json:"header"`
	Cells         []cellDoc      `yaml:"cells" json:"cells"`
	Organs        []organDoc     `yaml:"organs" json:"organs"`
	ManifestoHash string         `yaml:"manifesto_hash" json:"manifesto_hash"`
	Reputation    *reputationDoc `yaml:"reputation,omitempty" json:"reputation,omitempty"`
}

type headerDoc struct {
	CodeLength   int64  `yaml:"code_length" json:"code_length"`
	GasLimit     int64  `yaml:"gas_limit" json:"gas_limit"`
	ServiceIndex string `yaml:"service_index" json:"service_index"`
}

type cellDoc struct {
	Name         string            `yaml:"name" json:"name"`
	LogicType    string            `yaml:"logic_type" json:"logic_type"`
	Parameters   map[string]string `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	CostEstimate string            `yaml:"cost_estimate" json:"cost_estimate"`
}

type organDoc struct {
	Name         string `yaml:"name" json:"name"`
	CapabilityID string `yaml:"capability_id" json:"capability_id"`
	Endpoint     string `yaml:"endpoint" json:"endpoint"`
	ABIVersion   string `yaml:"abi_version" json:"abi_version"`
	PriceCap     string `yaml:"price_cap" json:"price_cap"`
}

type reputationDoc struct {
	AverageRating      float64          `yaml:"average_rating" json:"average_rating"`
	TotalRatings       int64            `yaml:"total_ratings" json:"total_ratings"`
	RatingDistribution map[string]int64 `yaml:"rating_distribution,omitempty" json:"rating_distribution,omitempty"`
	LastRated          string           `yaml:"last_rated,omitempty" json:"last_rated,omitempty"`
}

// toDoc lowers a typed genome to its document form.
func (g *Genome) toDoc() genomeDoc {
	doc := genomeDoc{
		Header: headerDoc{
			CodeLength:   g.Header.CodeLength,
			GasLimit:     g.Header.GasLimit,
			ServiceIndex: g.Header.ServiceIndex,
		},
		Cells:         make([]cellDoc, len(g.Cells)),
		Organs:        make([]organDoc, len(g.Organs)),
		ManifestoHash: g.ManifestoHash,
	}
	for i, c := range g.Cells {
		doc.Cells[i] = cellDoc{
			Name:         c.Name,
			LogicType:    string(c.LogicType),
			Parameters:   c.Parameters,
			CostEstimate: c.CostEstimate.String(),
		}
	}
	for i, o := range g.Organs {
		doc.Organs[i] = organDoc{
			Name:         o.Name,
			CapabilityID: o.CapabilityID,
			Endpoint:     o.Endpoint,
			ABIVersion:   o.ABIVersion,
			PriceCap:     o.PriceCap.String(),
		}
	}
	if g.Reputation != nil {
		rd := reputationDoc{
			AverageRating: g.Reputation.AverageRating,
			TotalRatings:  g.Reputation.TotalRatings,
		}
		if len(g.Reputation.RatingDistribution) > 0 {
			rd.RatingDistribution = make(map[string]int64, len(g.Reputation.RatingDistribution))
			for star, n := range g.Reputation.RatingDistribution {
				rd.RatingDistribution[ratingKey(star)] = n
			}
		}
		if g.Reputation.LastRated != nil {
			rd.LastRated = g.Reputation.LastRated.UTC().Format(time.RFC3339)
		}
		doc.Reputation = &rd
	}
	return doc
}

func ratingKey(star int) string {
	return string(rune('0' + star))
}

// fromDoc raises a validated document to the typed model. The document is
// assumed schema-valid; only value-level checks remain here.
func fromDoc(doc genomeDoc) (*Genome, error) {
	g := &Genome{
		Header: Header{
			CodeLength:   doc.Header.CodeLength,
			GasLimit:     doc.Header.GasLimit,
			ServiceIndex: doc.Header.ServiceIndex,
		},
		Cells:         make([]Cell, len(doc.Cells)),
		Organs:        make([]Organ, len(doc.Organs)),
		ManifestoHash: doc.ManifestoHash,
	}
	for i, c := range doc.Cells {
		cost, err := wealth.ParseAmount(c.CostEstimate, Currency)
		if err != nil {
			return nil, &SchemaError{Field: "cells[" + c.Name + "].cost_estimate", Message: "invalid monetary value", cause: err}
		}
		g.Cells[i] = Cell{
			Name:         c.Name,
			LogicType:    LogicType(c.LogicType),
			Parameters:   c.Parameters,
			CostEstimate: cost,
		}
	}
	for i, o := range doc.Organs {
		priceCap, err := wealth.ParseAmount(o.PriceCap, Currency)
		if err != nil {
			return nil, &SchemaError{Field: "organs[" + o.Name + "].price_cap", Message: "invalid monetary value", cause: err}
		}
		g.Organs[i] = Organ{
			Name:         o.Name,
			CapabilityID: o.CapabilityID,
			Endpoint:     o.Endpoint,
			ABIVersion:   o.ABIVersion,
			PriceCap:     priceCap,
		}
	}
	if doc.Reputation != nil {
		rep := &Reputation{
			AverageRating: doc.Reputation.AverageRating,
			TotalRatings:  doc.Reputation.TotalRatings,
		}
		if len(doc.Reputation.RatingDistribution) > 0 {
			rep.RatingDistribution = make(map[int]int64, len(doc.Reputation.RatingDistribution))
			for k, n := range doc.Reputation.RatingDistribution {
				if len(k) == 1 && k[0] >= '1' && k[0] <= '5' {
					rep.RatingDistribution[int(k[0]-'0')] = n
				}
			}
		}
		if doc.Reputation.LastRated != "" {
			t, err := time.Parse(time.RFC3339, doc.Reputation.LastRated)
			if err != nil {
				return nil, &SchemaError{Field: "reputation.last_rated", Message: "invalid RFC 3339 timestamp", cause: err}
			}
			rep.LastRated = &t
		}
		g.Reputation = rep
	}
	return g, nil
}
