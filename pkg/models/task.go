package models

// PromptInputKey is the task input key that, when present, overrides the
// synthesized prompt with a caller-supplied one.
const PromptInputKey = "prompt"

// Task is a unit of work within a workflow, bound to one agent. Tasks listed
// in Dependencies must complete successfully before this task may start.
type Task struct {
	ID           string         `json:"id"           validate:"required"`
	Name         string         `json:"name"         validate:"required"`
	Description  string         `json:"description"`
	AgentID      string         `json:"agent_id"     validate:"required"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Input        map[string]any `json:"input,omitempty"`

	// MaxRetries is the number of additional completion attempts made for
	// this task after the first one fails. Network-level retries inside the
	// provider gateway are counted separately.
	MaxRetries int `json:"max_retries,omitempty" validate:"gte=0"`
}

// PromptOverride returns the caller-supplied prompt, if any.
func (t *Task) PromptOverride() (string, bool) {
	if t.Input == nil {
		return "", false
	}

	prompt, ok := t.Input[PromptInputKey].(string)
	if !ok || prompt == "" {
		return "", false
	}

	return prompt, true
}
