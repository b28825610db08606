package config

// AgentModelConfig mirrors the teacher's agent.Config / agent.AgentConfig
// shape (pkg/core/agent/manager.go in the retrieved corpus), generalized
// from "which cloud vendor serves this agent" to "which local model
// serves this agent" now that the LLM Gateway targets a single local
// runtime (spec.md §4.1).
type AgentModelConfig struct {
	Agents map[string]AgentOverride `yaml:"agents"`
}

// AgentOverride lets an individual agent pin a non-default model, the
// way the teacher let an agent pin a non-default provider.
type AgentOverride struct {
	Model       string `yaml:"model"`
	Description string `yaml:"description"`
}

// ModelFor resolves the model name for a named agent: its override if
// one is configured, else the given default.
func (c AgentModelConfig) ModelFor(agentName, defaultModel string) string {
	if c.Agents == nil {
		return defaultModel
	}
	if o, ok := c.Agents[agentName]; ok && o.Model != "" {
		return o.Model
	}
	return defaultModel
}
