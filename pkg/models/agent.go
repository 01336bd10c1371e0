package models

// Agent is a named model configuration that tasks delegate their work to.
// The Model field selects both the provider family and the concrete model,
// e.g. "claude-sonnet-4" or "gpt-4o".
type Agent struct {
	ID           string   `json:"id"           validate:"required"`
	Name         string   `json:"name"         validate:"required"`
	Role         string   `json:"role"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities,omitempty"`
	Model        string   `json:"model"        validate:"required"`
	Temperature  float64  `json:"temperature"`
}
