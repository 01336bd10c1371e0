package gateway

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func testGateway(model llms.Model) *Gateway {
	g := New(testLogger(), Config{
		Timeout:        time.Second,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
	g.newClient = func(Provider) (llms.Model, error) { return model, nil }

	return g
}

// fakeModel scripts a sequence of completion responses.
type fakeModel struct {
	calls     int
	responses []fakeResponse
}

type fakeResponse struct {
	text string
	err  error
}

func (m *fakeModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	response := m.responses[min(m.calls, len(m.responses)-1)]
	m.calls++

	if response.err != nil {
		return nil, response.err
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: response.text}},
	}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	response, err := m.GenerateContent(ctx, nil, options...)
	if err != nil {
		return "", err
	}

	return response.Choices[0].Content, nil
}

func TestFamilyForModel(t *testing.T) {
	tests := []struct {
		model  string
		family Family
		ok     bool
	}{
		{"claude-sonnet-4", FamilyAnthropic, true},
		{"Claude-Opus-4", FamilyAnthropic, true},
		{"gpt-4o", FamilyOpenAI, true},
		{"o1-mini", FamilyOpenAI, true},
		{"grok-3", FamilyXAI, true},
		{"unsupported-model-x", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		family, ok := FamilyForModel(tt.model)
		assert.Equal(t, tt.ok, ok, tt.model)
		assert.Equal(t, tt.family, family, tt.model)
	}
}

func TestResolveProvider_CallerCredentialWins(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	provider, err := ResolveProvider("claude-sonnet-4", Credentials{FamilyAnthropic: "caller-key"})
	require.NoError(t, err)
	assert.Equal(t, "caller-key", provider.APIKey)
	assert.Equal(t, FamilyAnthropic, provider.Family)
}

func TestResolveProvider_EnvFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")

	provider, err := ResolveProvider("gpt-4o", nil)
	require.NoError(t, err)
	assert.Equal(t, "env-key", provider.APIKey)
}

func TestResolveProvider_NoCredential(t *testing.T) {
	t.Setenv("XAI_API_KEY", "")

	_, err := ResolveProvider("grok-3", nil)
	require.Error(t, err)
	assert.True(t, IsNoCredential(err))
}

func TestResolveProvider_UnknownModel(t *testing.T) {
	_, err := ResolveProvider("unsupported-model-x", nil)
	require.Error(t, err)
	assert.True(t, IsUnknownModel(err))
}

func TestEncodeContext_Deterministic(t *testing.T) {
	entries := []ContextEntry{
		{Label: "gather", Value: "first output"},
		{Label: "analyze", Value: "second output"},
	}
	input := map[string]any{"topic": "storage engines", "depth": 2}

	first := EncodeContext(entries, input)
	for range 50 {
		assert.Equal(t, first, EncodeContext(entries, input))
	}

	assert.Contains(t, first, "### gather")
	assert.Contains(t, first, "### analyze")
	assert.Less(t, indexOf(first, "gather"), indexOf(first, "analyze"))
	assert.Contains(t, first, "topic: \"storage engines\"")
}

func TestEncodeContext_Empty(t *testing.T) {
	assert.Empty(t, EncodeContext(nil, nil))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}

	return -1
}

func TestComplete_Success(t *testing.T) {
	model := &fakeModel{responses: []fakeResponse{{text: "hello"}}}
	g := testGateway(model)

	output, err := g.Complete(context.Background(), Request{
		Provider: Provider{Family: FamilyAnthropic, Model: "claude-sonnet-4", APIKey: "k"},
		Prompt:   "say hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", output)
	assert.Equal(t, 1, model.calls)
}

func TestNew_ZeroConfigAppliesDefaults(t *testing.T) {
	g := New(testLogger(), Config{})

	assert.Equal(t, DefaultTimeout, g.config.Timeout)
	assert.Equal(t, uint64(DefaultMaxRetries), g.config.MaxRetries)
	assert.Equal(t, defaultInitialBackoff, g.config.InitialBackoff)
	assert.Equal(t, defaultMaxBackoff, g.config.MaxBackoff)
}

func TestComplete_ZeroConfigRetriesTransientFailure(t *testing.T) {
	model := &fakeModel{responses: []fakeResponse{
		{err: errors.New("status code: 503 service unavailable")},
		{text: "recovered"},
	}}
	g := New(testLogger(), Config{})
	g.newClient = func(Provider) (llms.Model, error) { return model, nil }

	output, err := g.Complete(context.Background(), Request{
		Provider: Provider{Family: FamilyOpenAI, Model: "gpt-4o", APIKey: "k"},
		Prompt:   "p",
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", output)
	assert.Equal(t, 2, model.calls)
}

func TestComplete_RetriesTransientFailure(t *testing.T) {
	model := &fakeModel{responses: []fakeResponse{
		{err: errors.New("status code: 503 service unavailable")},
		{err: errors.New("connection reset by peer")},
		{text: "recovered"},
	}}
	g := testGateway(model)

	output, err := g.Complete(context.Background(), Request{
		Provider: Provider{Family: FamilyOpenAI, Model: "gpt-4o", APIKey: "k"},
		Prompt:   "p",
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", output)
	assert.Equal(t, 3, model.calls)
}

func TestComplete_PermanentFailureNotRetried(t *testing.T) {
	model := &fakeModel{responses: []fakeResponse{
		{err: errors.New("status code: 400 bad request")},
	}}
	g := testGateway(model)

	_, err := g.Complete(context.Background(), Request{
		Provider: Provider{Family: FamilyOpenAI, Model: "gpt-4o", APIKey: "k"},
		Prompt:   "p",
	})
	require.Error(t, err)

	var httpErr *ProviderHTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 400, httpErr.StatusCode)
	assert.Equal(t, 1, model.calls)
}

func TestComplete_ExhaustedRetriesSurfaceProviderError(t *testing.T) {
	model := &fakeModel{responses: []fakeResponse{
		{err: errors.New("status code: 500 internal server error")},
	}}
	g := testGateway(model)

	_, err := g.Complete(context.Background(), Request{
		Provider: Provider{Family: FamilyXAI, Model: "grok-3", APIKey: "k"},
		Prompt:   "p",
	})
	require.Error(t, err)

	var httpErr *ProviderHTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 500, httpErr.StatusCode)
	// First attempt plus MaxRetries.
	assert.Equal(t, 3, model.calls)
}

func TestComplete_EmptyResponseIsMalformed(t *testing.T) {
	model := &fakeModel{responses: []fakeResponse{{text: "  "}}}
	g := testGateway(model)

	_, err := g.Complete(context.Background(), Request{
		Provider: Provider{Family: FamilyAnthropic, Model: "claude-sonnet-4", APIKey: "k"},
		Prompt:   "p",
	})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestComplete_Timeout(t *testing.T) {
	model := &fakeModel{responses: []fakeResponse{{err: context.DeadlineExceeded}}}
	g := testGateway(model)

	_, err := g.Complete(context.Background(), Request{
		Provider: Provider{Family: FamilyAnthropic, Model: "claude-sonnet-4", APIKey: "k"},
		Prompt:   "p",
	})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, 1, model.calls)
}

func TestTransientClassification(t *testing.T) {
	assert.True(t, transient(errors.New("status code: 503")))
	assert.True(t, transient(errors.New("rate limit exceeded")))
	assert.True(t, transient(errors.New("dial tcp: connection refused")))
	assert.False(t, transient(errors.New("status code: 401 unauthorized")))
	assert.False(t, transient(context.DeadlineExceeded))
	assert.False(t, transient(nil))
}
