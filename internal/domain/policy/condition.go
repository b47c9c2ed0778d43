package policy

// ConditionType discriminates the condition variant. The set is closed:
// the compiler rejects any type not listed here, and the matcher switches
// exhaustively over it.
type ConditionType string

const (
	// ConditionComplexity compares the resource's complexity score to a threshold.
	ConditionComplexity ConditionType = "complexity"
	// ConditionLabel matches against the resource's label set.
	ConditionLabel ConditionType = "label"
	// ConditionAuthor matches against the actor's roles.
	ConditionAuthor ConditionType = "author"
	// ConditionFilePattern glob-matches the resource's changed-file list.
	ConditionFilePattern ConditionType = "file_pattern"
	// ConditionTimeWindow matches the request timestamp against a day/hour window.
	ConditionTimeWindow ConditionType = "time_window"
	// ConditionAgent matches the acting agent and optionally its confidence.
	ConditionAgent ConditionType = "agent"
	// ConditionExpression evaluates a compiled CEL expression over the request.
	ConditionExpression ConditionType = "expression"
)

// Operator is a numeric comparison operator for threshold conditions.
type Operator string

const (
	OpGT  Operator = "gt"
	OpGTE Operator = "gte"
	OpLT  Operator = "lt"
	OpLTE Operator = "lte"
	OpEQ  Operator = "eq"
	OpNE  Operator = "ne"
)

// MatchMode selects set-matching semantics for label conditions.
type MatchMode string

const (
	// MatchAny matches when at least one listed value is present.
	MatchAny MatchMode = "any"
	// MatchAll matches only when every listed value is present.
	MatchAll MatchMode = "all"
)

// WindowMode selects whether a time window matches inside or outside its range.
type WindowMode string

const (
	WindowDuring  WindowMode = "during"
	WindowOutside WindowMode = "outside"
)

// Condition is an enum-tagged variant: Type selects which fields apply.
// All conditions within one rule are combined with AND semantics.
type Condition struct {
	Type ConditionType `yaml:"type" json:"type"`

	// Operator and Threshold apply to complexity conditions, and to agent
	// conditions when Confidence is set. Operator defaults to gte.
	Operator  Operator `yaml:"operator" json:"operator,omitempty"`
	Threshold float64  `yaml:"threshold" json:"threshold,omitempty"`

	// Labels and Match apply to label conditions. Match defaults to any.
	Labels []string  `yaml:"labels" json:"labels,omitempty"`
	Match  MatchMode `yaml:"match" json:"match,omitempty"`

	// Roles applies to author conditions.
	Roles []string `yaml:"roles" json:"roles,omitempty"`

	// Patterns applies to file_pattern conditions.
	Patterns []string `yaml:"patterns" json:"patterns,omitempty"`

	// Days, StartHour, EndHour and Window apply to time_window conditions.
	// Hours are half-open [StartHour, EndHour) in the request timestamp's
	// location; a start past the end wraps around midnight. Empty Days
	// means every day. Window defaults to during.
	Days      []string   `yaml:"days" json:"days,omitempty"`
	StartHour int        `yaml:"start_hour" json:"start_hour,omitempty"`
	EndHour   int        `yaml:"end_hour" json:"end_hour,omitempty"`
	Window    WindowMode `yaml:"window" json:"window,omitempty"`

	// Agents and Confidence apply to agent conditions. Empty Agents matches
	// any agent; Confidence, when set, is compared using Operator.
	Agents     []string `yaml:"agents" json:"agents,omitempty"`
	Confidence *float64 `yaml:"confidence" json:"confidence,omitempty"`

	// Expression applies to expression conditions (CEL source).
	Expression string `yaml:"expression" json:"expression,omitempty"`
}
