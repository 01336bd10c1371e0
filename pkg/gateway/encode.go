package gateway

import (
	"encoding/json"
	"sort"
	"strings"
)

// ContextEntry is one labelled block of upstream context, typically the
// output of a dependency task. Entries are encoded in slice order, so callers
// control ordering and the encoding stays byte-identical across runs.
type ContextEntry struct {
	Label string
	Value string
}

// EncodeContext serializes context entries and the optional workflow input
// into the block prepended to the prompt. Deterministic for a given input:
// entries keep their given order and map keys are sorted.
func EncodeContext(entries []ContextEntry, workflowInput map[string]any) string {
	if len(entries) == 0 && len(workflowInput) == 0 {
		return ""
	}

	var b strings.Builder

	b.WriteString("Context:\n")

	for _, entry := range entries {
		b.WriteString("### ")
		b.WriteString(entry.Label)
		b.WriteString("\n")
		b.WriteString(entry.Value)
		b.WriteString("\n")
	}

	if len(workflowInput) > 0 {
		keys := make([]string, 0, len(workflowInput))
		for key := range workflowInput {
			keys = append(keys, key)
		}

		sort.Strings(keys)

		b.WriteString("### workflow input\n")

		for _, key := range keys {
			value, err := json.Marshal(workflowInput[key])
			if err != nil {
				// Unmarshalable values are dropped rather than breaking determinism.
				continue
			}

			b.WriteString(key)
			b.WriteString(": ")
			b.Write(value)
			b.WriteString("\n")
		}
	}

	return b.String()
}
