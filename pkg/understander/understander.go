// Package understander implements the Query Understander (C8): a
// single think=false LLM call that turns a user's raw chat message into
// a structured intent (a retrieval filter, an enhanced query string,
// and an optional agent hint), grounded on the teacher's fee package's
// single-shot keyword/LLM classification style
// (pkg/core/fee/section_router.go).
package understander

import (
	"context"
	"time"

	"finsight/pkg/jsonutil"
	"finsight/pkg/llm"
	"finsight/pkg/vectorindex"
)

// Intent is the understander's structured verdict.
type Intent struct {
	EnhancedQuery string             `json:"enhanced_query"`
	Filter        vectorindex.Filter `json:"-"`
	AgentHint     string             `json:"agent_hint,omitempty"`
}

type rawIntent struct {
	EnhancedQuery string   `json:"enhanced_query"`
	AgentHint     string   `json:"agent_hint,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	DateFrom      *int64   `json:"date_from,omitempty"`
	DateTo        *int64   `json:"date_to,omitempty"`
	AmountMin     *float64 `json:"amount_min,omitempty"`
	AmountMax     *float64 `json:"amount_max,omitempty"`
}

const systemPrompt = `You rewrite a user's question about their financial documents into a clean search query and extract any explicit filters. Respond with ONLY JSON: {"enhanced_query":"...","agent_hint":"","categories":[],"date_from":null,"date_to":null,"amount_min":null,"amount_max":null}. agent_hint should name the single most relevant specialist agent if the question clearly targets one (e.g. "fee_hunter", "ratio_analyst"), or be empty if general.`

// Understand runs the single-call classification. On any LLM or parse
// failure it degrades to treating the raw message as the enhanced
// query with no filter, rather than failing the chat turn.
func Understand(ctx context.Context, gateway *llm.Gateway, routerModel, message string) Intent {
	raw, err := gateway.Generate(ctx, message, systemPrompt, llm.Options{Model: routerModel, Think: false, Timeout: 30 * time.Second})
	if err != nil {
		return Intent{EnhancedQuery: message}
	}

	var parsed rawIntent
	if _, err := jsonutil.SmartParse(raw, &parsed); err != nil {
		return Intent{EnhancedQuery: message}
	}

	intent := Intent{EnhancedQuery: parsed.EnhancedQuery, AgentHint: parsed.AgentHint}
	if intent.EnhancedQuery == "" {
		intent.EnhancedQuery = message
	}

	filter := vectorindex.Filter{}
	if len(parsed.Categories) > 0 {
		filter.Category = &vectorindex.InFilter{Values: parsed.Categories}
	}
	if parsed.DateFrom != nil || parsed.DateTo != nil {
		filter.DateRange = &vectorindex.RangeFilter{}
		if parsed.DateFrom != nil {
			v := float64(*parsed.DateFrom)
			filter.DateRange.GTE = &v
		}
		if parsed.DateTo != nil {
			v := float64(*parsed.DateTo)
			filter.DateRange.LTE = &v
		}
	}
	if parsed.AmountMin != nil || parsed.AmountMax != nil {
		filter.AmountRange = &vectorindex.RangeFilter{GTE: parsed.AmountMin, LTE: parsed.AmountMax}
	}
	intent.Filter = filter

	return intent
}
