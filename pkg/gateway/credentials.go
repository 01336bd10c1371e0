package gateway

import (
	"fmt"
	"os"
)

// Credentials maps provider families to API keys supplied by the caller for
// one invocation. Caller-supplied keys override deployment-level environment
// fallbacks.
type Credentials map[Family]string

// Provider is a fully resolved completion backend: a family, the concrete
// model, and the credential to use.
type Provider struct {
	Family Family
	Model  string
	APIKey string
}

// ResolveProvider inspects the model name to determine the provider family
// and picks a credential, preferring the caller-supplied one.
func ResolveProvider(model string, supplied Credentials) (Provider, error) {
	family, ok := FamilyForModel(model)
	if !ok {
		return Provider{}, fmt.Errorf("model %q: %w", model, ErrUnknownModel)
	}

	key := supplied[family]
	if key == "" {
		key = os.Getenv(family.EnvVar())
	}

	if key == "" {
		return Provider{}, fmt.Errorf("family %s (model %q): %w", family, model, ErrNoCredential)
	}

	return Provider{Family: family, Model: model, APIKey: key}, nil
}
