// Package router implements the Query Router (C9): a fast keyword-map
// stage picks an agent when a message unambiguously names one topic; an
// LLM disambiguation stage (think=false) breaks ties or handles
// messages with no keyword signal. Grounded on the teacher's
// pkg/core/fee/section_router.go, which routes a filing section to a
// fee-extraction strategy the same way: keyword table first, model
// fallback second.
package router

import (
	"context"
	"strings"
	"time"

	"finsight/pkg/jsonutil"
	"finsight/pkg/llm"
)

// AgentNames lists the twelve domain agents a query can be routed to.
var AgentNames = []string{
	"expense_analyst", "income_analyst", "fee_hunter", "budget_advisor",
	"trend_analyst", "transaction_investigator", "ratio_analyst",
	"profitability_analyst", "liquidity_analyst", "fin_trend_analyst",
	"risk_analyst", "efficiency_analyst",
}

var keywordMap = map[string][]string{
	"expense_analyst":          {"expense", "spending", "spend", "cost breakdown"},
	"income_analyst":           {"income", "earnings", "salary", "deposit"},
	"fee_hunter":                {"fee", "charge", "surcharge", "penalty"},
	"budget_advisor":           {"budget", "save money", "savings plan"},
	"trend_analyst":            {"trend", "over time", "month over month", "pattern"},
	"transaction_investigator": {"suspicious", "fraud", "anomaly", "unusual"},
	"ratio_analyst":            {"ratio", "current ratio", "quick ratio", "debt to equity"},
	"profitability_analyst":    {"profit margin", "profitability", "net margin", "gross margin"},
	"liquidity_analyst":        {"liquidity", "working capital"},
	"fin_trend_analyst":        {"revenue growth", "year over year", "yoy"},
	"risk_analyst":             {"risk", "leverage", "solvency"},
	"efficiency_analyst":       {"efficiency", "turnover", "asset utilization"},
}

const disambiguationPrompt = `Pick exactly one agent name from this list that best answers the user's question: expense_analyst, income_analyst, fee_hunter, budget_advisor, trend_analyst, transaction_investigator, ratio_analyst, profitability_analyst, liquidity_analyst, fin_trend_analyst, risk_analyst, efficiency_analyst. Respond with ONLY JSON: {"agent":"..."}.`

type routeChoice struct {
	Agent string `json:"agent"`
}

// Route picks an agent name for message. If a prior stage (the Query
// Understander) already produced an agent_hint naming a valid agent,
// that hint wins outright.
func Route(ctx context.Context, gateway *llm.Gateway, routerModel, message, agentHint string) string {
	if agentHint != "" && isKnownAgent(agentHint) {
		return agentHint
	}

	if agent, ok := matchKeywords(message); ok {
		return agent
	}

	return disambiguate(ctx, gateway, routerModel, message)
}

func matchKeywords(message string) (string, bool) {
	lower := strings.ToLower(message)
	matched := ""
	count := 0
	for agent, words := range keywordMap {
		for _, w := range words {
			if strings.Contains(lower, w) {
				matched = agent
				count++
				break
			}
		}
	}
	if count == 1 {
		return matched, true
	}
	return "", false
}

func disambiguate(ctx context.Context, gateway *llm.Gateway, routerModel, message string) string {
	raw, err := gateway.Generate(ctx, message, disambiguationPrompt, llm.Options{Model: routerModel, Think: false, Timeout: 30 * time.Second})
	if err != nil {
		return "expense_analyst" // conservative default: broadest-applicability agent
	}

	var choice routeChoice
	if _, err := jsonutil.SmartParse(raw, &choice); err != nil || !isKnownAgent(choice.Agent) {
		return "expense_analyst"
	}
	return choice.Agent
}

func isKnownAgent(name string) bool {
	for _, a := range AgentNames {
		if a == name {
			return true
		}
	}
	return false
}
