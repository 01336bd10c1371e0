package gateway

import "strings"

// Family identifies a provider family. The set is closed; routing from model
// names to families goes through the registration table below, so adding a
// model alias is a data change.
type Family string

const (
	FamilyAnthropic Family = "anthropic"
	FamilyOpenAI    Family = "openai"
	FamilyXAI       Family = "xai"
)

// EnvVar returns the environment variable holding the deployment-level
// fallback credential for the family.
func (f Family) EnvVar() string {
	switch f {
	case FamilyAnthropic:
		return "ANTHROPIC_API_KEY"
	case FamilyOpenAI:
		return "OPENAI_API_KEY"
	case FamilyXAI:
		return "XAI_API_KEY"
	default:
		return ""
	}
}

// modelRoute maps a model-name prefix to its provider family.
type modelRoute struct {
	Prefix string
	Family Family
}

// routingTable is consulted in order; the first matching prefix wins.
var routingTable = []modelRoute{
	{Prefix: "claude", Family: FamilyAnthropic},
	{Prefix: "gpt", Family: FamilyOpenAI},
	{Prefix: "o1", Family: FamilyOpenAI},
	{Prefix: "o3", Family: FamilyOpenAI},
	{Prefix: "grok", Family: FamilyXAI},
}

// FamilyForModel resolves a model name to its provider family.
func FamilyForModel(model string) (Family, bool) {
	name := strings.ToLower(strings.TrimSpace(model))
	for _, route := range routingTable {
		if strings.HasPrefix(name, route.Prefix) {
			return route.Family, true
		}
	}

	return "", false
}
