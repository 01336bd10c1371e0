package gateway

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

const xaiBaseURL = "https://api.x.ai/v1"

// newClient builds a langchaingo model client for a resolved provider. xAI
// speaks the OpenAI wire protocol, so it reuses the openai client with its
// own base URL.
func newClient(provider Provider) (llms.Model, error) {
	switch provider.Family {
	case FamilyAnthropic:
		return anthropic.New(
			anthropic.WithModel(provider.Model),
			anthropic.WithToken(provider.APIKey),
		)
	case FamilyOpenAI:
		return openai.New(
			openai.WithModel(provider.Model),
			openai.WithToken(provider.APIKey),
		)
	case FamilyXAI:
		return openai.New(
			openai.WithModel(provider.Model),
			openai.WithToken(provider.APIKey),
			openai.WithBaseURL(xaiBaseURL),
		)
	default:
		return nil, fmt.Errorf("family %q: %w", provider.Family, ErrUnknownModel)
	}
}
