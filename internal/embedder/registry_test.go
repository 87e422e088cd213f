package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{ProviderJina, ProviderLocal, ProviderOpenAI}, r.Names())
	assert.True(t, r.Has("LOCAL"))
	assert.False(t, r.Has("onnx"))
}

func TestRegistry_New(t *testing.T) {
	r := NewRegistry()

	t.Run("local", func(t *testing.T) {
		p, err := r.New(Config{Provider: ProviderLocal, CacheSize: 10})
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, p.Name())
		assert.Equal(t, LocalDimension, p.Dimensions())
	})

	t.Run("api provider with endpoint override", func(t *testing.T) {
		p, err := r.New(Config{Provider: ProviderJina, APIKey: "k", Endpoint: "http://localhost:1"})
		require.NoError(t, err)
		api, ok := p.(*APIProvider)
		require.True(t, ok)
		assert.Equal(t, "http://localhost:1", api.endpoint)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := r.New(Config{Provider: "onnx"})
		assert.ErrorIs(t, err, ErrUnsupportedModel)
	})
}

type stubProvider struct{ dims int }

func (s *stubProvider) Name() string                         { return "stub" }
func (s *stubProvider) Dimensions() int                      { return s.dims }
func (s *stubProvider) Initialize(ctx context.Context) error { return nil }
func (s *stubProvider) Dispose(ctx context.Context) error    { return nil }
func (s *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, s.dims), nil
}
func (s *stubProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, s.dims)
	}
	return out, nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register("Stub", func(cfg Config, cache *Cache) (Provider, error) {
		return &stubProvider{dims: 4}, nil
	})

	p, err := r.New(Config{Provider: "stub"})
	require.NoError(t, err)
	assert.Equal(t, 4, p.Dimensions())
	assert.Contains(t, r.Names(), "stub")
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name         string
		cfg          Config
		env          map[string]string
		wantProvider string
		wantKey      string
	}{
		{
			name:         "defaults to local",
			wantProvider: ProviderLocal,
		},
		{
			name:         "jina key wins over openai key",
			env:          map[string]string{EnvJinaAPIKey: "j", EnvOpenAIAPIKey: "o"},
			wantProvider: ProviderJina,
			wantKey:      "j",
		},
		{
			name:         "openai key",
			env:          map[string]string{EnvOpenAIAPIKey: "o"},
			wantProvider: ProviderOpenAI,
			wantKey:      "o",
		},
		{
			name:         "provider env var",
			env:          map[string]string{EnvProvider: "OpenAI", EnvJinaAPIKey: "j", EnvOpenAIAPIKey: "o"},
			wantProvider: ProviderOpenAI,
			wantKey:      "o",
		},
		{
			name:         "explicit config wins",
			cfg:          Config{Provider: ProviderJina, APIKey: "explicit"},
			env:          map[string]string{EnvProvider: ProviderLocal, EnvJinaAPIKey: "j"},
			wantProvider: ProviderJina,
			wantKey:      "explicit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{EnvProvider, EnvJinaAPIKey, EnvOpenAIAPIKey} {
				t.Setenv(key, tt.env[key])
			}

			got := Detect(tt.cfg)
			assert.Equal(t, tt.wantProvider, got.Provider)
			assert.Equal(t, tt.wantKey, got.APIKey)
		})
	}
}
