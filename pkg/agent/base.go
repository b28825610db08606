// Package agent implements the Agent layer (C10): twelve domain
// specialists, each a thin configuration (retrieval scope, system
// prompt, findings schema) over one shared two-protocol core.
// Generalized from the teacher's DebateAgent interface
// (pkg/core/debate/agents.go: Role()/Name()/Generate(ctx, shared)) —
// here Generate splits into RunInsights (the deep-think-then-answer
// protocol, spec.md §4.10) and AnswerChat (the single cached-context
// protocol), because unlike the teacher's one-shot debate turn, this
// system runs two structurally different conversations with the same
// agent identity.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finsight/pkg/jsonutil"
	"finsight/pkg/llm"
	"finsight/pkg/markdown"
	"finsight/pkg/vectorindex"
)

// NeedsInsightsSentinel is returned by Orchestrator.AnswerChat (and sent
// by the chat websocket) when no insights run has completed yet for
// this agent in this workspace; Base.AnswerChat never returns it, per spec.md
// §4.10/§4.11's NEEDS_INSIGHTS signal.
const NeedsInsightsSentinel = "NEEDS_INSIGHTS"

// Call parameters for the two protocols, spec.md §4.10:
//   - think call: think=true, max_tokens=32000, temp=0.1
//   - answer call: think=true, max_tokens=32000, temp=0.1-0.3 (0.2 here)
//   - chat call: think=false, max_tokens=8000, temp=0.1
const (
	thinkTemperature = 0.1
	thinkMaxTokens   = 32000

	answerTemperature = 0.2
	answerMaxTokens   = 32000

	chatTemperature = 0.1
	chatMaxTokens   = 8000
)

// Spec is the declarative definition of one domain agent: its identity,
// retrieval scope, and prompts. Every one of the twelve named agents is
// one Spec value; Base supplies the shared protocol logic.
type Spec struct {
	Name          string
	DisplayName   string
	InsightPrompt string // system prompt for the insights think+answer calls
	ChatPrompt    string // system prompt for the single-call chat protocol
	FindingsKeys  []string
	DocKind       string // "transaction" | "financial_statement"
}

// Base implements the shared protocol for a Spec against a Gateway.
type Base struct {
	Spec    Spec
	Model   string
	Gateway *llm.Gateway
}

func NewBase(spec Spec, gateway *llm.Gateway, model string) *Base {
	return &Base{Spec: spec, Model: model, Gateway: gateway}
}

func (b *Base) Name() string { return b.Spec.Name }

// InsightsOutput is the structured result of a full insights run:
// summary prose plus a typed findings map, ready to flatten into
// model.AnalysisResult.Findings at the persistence boundary.
type InsightsOutput struct {
	Summary  string
	Findings map[string]interface{}
}

type findingsEnvelope struct {
	Summary  string                 `json:"summary"`
	Findings map[string]interface{} `json:"findings"`
}

// RunInsights executes the two-call protocol: a think=true call that
// reasons freely over the retrieved evidence, then a second think=true
// call that compresses that reasoning into the agent's structured findings
// schema. Splitting reasoning from formatting this way keeps the
// second call's JSON well-formed even when the first call rambles.
func (b *Base) RunInsights(ctx context.Context, retriever *vectorindex.ScopedRetriever, query string, extraContext map[string]interface{}) (InsightsOutput, error) {
	evidence, err := retriever.QuerySemantic(ctx, query, 50, vectorindex.Filter{})
	if err != nil {
		return InsightsOutput{}, fmt.Errorf("retrieve evidence: %w", err)
	}

	reasoningPrompt := buildReasoningPrompt(b.Spec, evidence, extraContext)
	reasoning, err := b.Gateway.Generate(ctx, reasoningPrompt, b.Spec.InsightPrompt, llm.Options{
		Model: b.Model, Think: true, Temperature: thinkTemperature, MaxTokens: thinkMaxTokens, Timeout: 180 * time.Second,
	})
	if err != nil {
		return InsightsOutput{}, fmt.Errorf("reasoning call: %w", err)
	}
	reasoning = markdown.StripThink(reasoning)

	answerPrompt := "Based on your analysis below, produce the final structured findings.\n\n" + reasoning +
		fmt.Sprintf("\n\nRespond with ONLY JSON: {\"summary\":\"...\",\"findings\":{%s}}", formatFindingsSchema(b.Spec.FindingsKeys))

	raw, err := b.Gateway.Generate(ctx, answerPrompt, b.Spec.InsightPrompt, llm.Options{
		Model: b.Model, Think: true, Temperature: answerTemperature, MaxTokens: answerMaxTokens, Timeout: 60 * time.Second,
	})
	if err != nil {
		return InsightsOutput{}, fmt.Errorf("answer call: %w", err)
	}
	raw = markdown.StripThink(raw)

	var envelope findingsEnvelope
	if _, err := jsonutil.SmartParse(raw, &envelope); err != nil {
		return InsightsOutput{}, fmt.Errorf("parse findings: %w", err)
	}

	summary := markdown.Clean(envelope.Summary)
	if !markdown.Valid(summary) {
		summary = envelope.Summary // fall back to raw text rather than drop the result
	}

	return InsightsOutput{Summary: summary, Findings: envelope.Findings}, nil
}

// AnswerChat executes the single-call cached-context protocol: retrieve
// relevant evidence for this turn, ask once with think=false against
// the cached insights summary the orchestrator already confirmed
// exists for this agent. Callers MUST NOT invoke this when no insights
// run has completed yet (spec.md §4.10's run_chat step 1); the
// orchestrator is responsible for that check and for returning
// NeedsInsightsSentinel itself without calling this method.
func (b *Base) AnswerChat(ctx context.Context, retriever *vectorindex.ScopedRetriever, cachedInsights, message string, filter vectorindex.Filter, history []llm.ChatMessage) (string, error) {
	evidence, err := retriever.QuerySemantic(ctx, message, 20, filter)
	if err != nil {
		return "", fmt.Errorf("retrieve evidence: %w", err)
	}

	messages := make([]llm.ChatMessage, 0, len(history)+2)
	messages = append(messages, llm.ChatMessage{Role: "system", Content: b.Spec.ChatPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.ChatMessage{Role: "user", Content: buildChatPrompt(cachedInsights, message, evidence)})

	_, chunks, err := b.Gateway.Chat(ctx, messages, llm.Options{
		Model: b.Model, Think: false, Temperature: chatTemperature, MaxTokens: chatMaxTokens, Timeout: 30 * time.Second,
	})
	if err != nil {
		return "", fmt.Errorf("chat call: %w", err)
	}

	var answer strings.Builder
	for chunk := range chunks {
		answer.WriteString(chunk)
	}

	return markdown.StripThink(answer.String()), nil
}

// AnswerChatStream mirrors AnswerChat's retrieval and prompt assembly
// but hands back the Gateway's raw token channel instead of buffering
// it, for callers (the chat websocket) that forward chunks as they
// arrive rather than waiting for the full answer. Since think=false is
// mandatory for this protocol (spec.md §4.10), chunks are forwarded
// unfiltered; there is no hidden-reasoning trace to strip mid-stream.
func (b *Base) AnswerChatStream(ctx context.Context, retriever *vectorindex.ScopedRetriever, cachedInsights, message string, filter vectorindex.Filter, history []llm.ChatMessage) (<-chan string, error) {
	evidence, err := retriever.QuerySemantic(ctx, message, 20, filter)
	if err != nil {
		return nil, fmt.Errorf("retrieve evidence: %w", err)
	}

	messages := make([]llm.ChatMessage, 0, len(history)+2)
	messages = append(messages, llm.ChatMessage{Role: "system", Content: b.Spec.ChatPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.ChatMessage{Role: "user", Content: buildChatPrompt(cachedInsights, message, evidence)})

	_, chunks, err := b.Gateway.Chat(ctx, messages, llm.Options{
		Model: b.Model, Think: false, Temperature: chatTemperature, MaxTokens: chatMaxTokens, Timeout: 30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("chat call: %w", err)
	}
	return chunks, nil
}

func buildReasoningPrompt(spec Spec, evidence []vectorindex.ScoredDoc, extra map[string]interface{}) string {
	prompt := fmt.Sprintf("You are the %s. Analyze the following evidence from the user's uploaded document and reason step by step about what it implies for your domain of expertise.\n\nEvidence:\n", spec.DisplayName)
	for _, e := range evidence {
		prompt += fmt.Sprintf("- %s\n", e.Doc.Text)
	}
	for k, v := range extra {
		prompt += fmt.Sprintf("\n%s: %v\n", k, v)
	}
	return prompt
}

func buildChatPrompt(cachedInsights, message string, evidence []vectorindex.ScoredDoc) string {
	prompt := "Your prior full analysis of this document:\n" + cachedInsights + "\n\nRelevant evidence:\n"
	for _, e := range evidence {
		prompt += fmt.Sprintf("- %s\n", e.Doc.Text)
	}
	prompt += "\nQuestion: " + message
	return prompt
}

func formatFindingsSchema(keys []string) string {
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q:null", k)
	}
	return out
}
