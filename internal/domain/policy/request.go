package policy

import "time"

// Actor identifies who is requesting the action.
type Actor struct {
	ID    string   `yaml:"id" json:"id"`
	Roles []string `yaml:"roles" json:"roles,omitempty"`
}

// ActionInput describes the action under evaluation.
type ActionInput struct {
	// Type is the kind of action: "code_change", "deployment", "agent_action", ...
	Type string `yaml:"type" json:"type"`
	// Agent identifies the automated agent performing the action, if any.
	Agent string `yaml:"agent" json:"agent,omitempty"`
	// Confidence is the agent's self-reported confidence in [0, 1].
	Confidence *float64 `yaml:"confidence" json:"confidence,omitempty"`
}

// Resource describes what the action touches. Every field is optional;
// a condition that needs an absent field fails to match instead of erroring.
type Resource struct {
	Repo       string   `yaml:"repo" json:"repo,omitempty"`
	Branch     string   `yaml:"branch" json:"branch,omitempty"`
	Complexity *float64 `yaml:"complexity" json:"complexity,omitempty"`
	Labels     []string `yaml:"labels" json:"labels,omitempty"`
	Files      []string `yaml:"files" json:"files,omitempty"`
}

// RequestContext carries evaluation-time context. Time-window conditions
// evaluate Timestamp, never the wall clock, so evaluation stays deterministic.
type RequestContext struct {
	Timestamp time.Time `yaml:"timestamp" json:"timestamp,omitempty"`
	// Attributes are free-form key/value pairs exposed to expression conditions.
	Attributes map[string]string `yaml:"attributes" json:"attributes,omitempty"`
}

// Request is one authorization question put to the evaluation engine.
type Request struct {
	Actor    Actor          `yaml:"actor" json:"actor"`
	Action   ActionInput    `yaml:"action" json:"action"`
	Resource Resource       `yaml:"resource" json:"resource"`
	Context  RequestContext `yaml:"context" json:"context"`
}
