package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/xxxsen/docchat/internal/config"
)

type stubEmbedder struct {
	name  string
	err   error
	calls [][]string
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	s.calls = append(s.calls, append([]string(nil), texts...))
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

func (s *stubEmbedder) ModelName() string { return s.name }

type stubGenerator struct {
	text string
	err  error
}

func (s *stubGenerator) Complete(ctx context.Context, system string, prompt string) (string, error) {
	return s.text, s.err
}

func TestGroupGeneratorFallsBack(t *testing.T) {
	g := NewGroupGenerator([]GeneratorEntry{
		{Name: "a", Generator: &stubGenerator{err: errors.New("down")}},
		{Name: "b", Generator: &stubGenerator{text: "answer"}},
	})
	res, err := g.Complete(context.Background(), "sys", "q")
	require.NoError(t, err)
	require.Equal(t, "answer", res)

	g = NewGroupGenerator([]GeneratorEntry{{Name: "a", Generator: &stubGenerator{err: errors.New("down")}}})
	_, err = g.Complete(context.Background(), "sys", "q")
	require.EqualError(t, err, "down")

	require.Nil(t, NewGroupGenerator(nil))
}

func TestBatchEmbedderSplits(t *testing.T) {
	next := &stubEmbedder{name: "m"}
	b := NewBatchEmbedder(next, 2, rate.NewLimiter(rate.Inf, 1))
	res, err := b.Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"}, TaskRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1}, {2}, {3}, {4}, {5}}, res)
	require.Equal(t, [][]string{{"a", "bb"}, {"ccc", "dddd"}, {"eeeee"}}, next.calls)
}

func TestBatchEmbedderPropagatesError(t *testing.T) {
	b := NewBatchEmbedder(&stubEmbedder{err: errors.New("boom")}, 10, nil)
	_, err := b.Embed(context.Background(), []string{"a"}, "")
	require.EqualError(t, err, "boom")
}

func TestOpenAICompatProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/chat/completions":
			var req openAIChatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Len(t, req.Messages, 2)
			require.Equal(t, "system", req.Messages[0].Role)
			require.Equal(t, "user", req.Messages[1].Role)
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  hi there "}}]}`))
		case "/v1/embeddings":
			var req openAIEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, []string{"x", "y"}, req.Input)
			_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2]},{"index":0,"embedding":[1]}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p, err := NewProvider("mistral", map[string]interface{}{"api_key": "key", "base_url": srv.URL + "/v1"})
	require.NoError(t, err)
	require.Equal(t, "mistral", p.Name())

	text, err := NewGenerator(p, "mistral-small").Complete(context.Background(), "only context", "question")
	require.NoError(t, err)
	require.Equal(t, "hi there", text)

	emb := NewEmbedder(p, "mistral-embed")
	vecs, err := emb.Embed(context.Background(), []string{"x", "y"}, TaskRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1}, {2}}, vecs)
	require.Equal(t, "mistral/mistral-embed", emb.ModelName())
}

func TestOpenAICompatProviderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`rate limited`))
	}))
	defer srv.Close()
	p, err := NewProvider("openai", map[string]interface{}{"api_key": "key", "base_url": srv.URL})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), "m", "", "q")
	require.ErrorContains(t, err, "429")
}

func TestOpenRouterCannotEmbed(t *testing.T) {
	p, err := NewProvider("openrouter", map[string]interface{}{"api_key": "key"})
	require.NoError(t, err)
	_, err = p.Embed(context.Background(), "m", []string{"a"}, "")
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestMissingKeyIsUnavailable(t *testing.T) {
	p, err := NewProvider("openai", map[string]interface{}{})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), "m", "", "q")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestBuildFromConfig(t *testing.T) {
	cfg := config.AIConfig{
		Providers: []config.AIProviderConfig{
			{Name: "main", Type: "openai", Data: map[string]interface{}{"api_key": "k"}},
			{Name: "router", Type: "openrouter", Data: map[string]interface{}{"api_key": "k"}},
		},
		Generators:        []config.AIModelRef{{Provider: "router", Model: "a"}, {Provider: "main", Model: "b"}},
		Embedders:         []config.AIModelRef{{Provider: "main", Model: "text-embedding-3-small"}},
		GeneratorFallback: true,
	}
	gen, emb, err := BuildFromConfig(cfg)
	require.NoError(t, err)
	require.NotNil(t, gen)
	require.Equal(t, "main/text-embedding-3-small", emb.ModelName())

	cfg.Embedders = []config.AIModelRef{{Provider: "nope", Model: "x"}}
	_, _, err = BuildFromConfig(cfg)
	require.Error(t, err)

	cfg.Providers = append(cfg.Providers, config.AIProviderConfig{Name: "main", Type: "openai"})
	_, _, err = BuildFromConfig(cfg)
	require.Error(t, err)
}

func TestBuildFromConfigFallbackRules(t *testing.T) {
	base := func() config.AIConfig {
		return config.AIConfig{
			Providers:  []config.AIProviderConfig{{Name: "main", Type: "openai", Data: map[string]interface{}{"api_key": "k"}}},
			Generators: []config.AIModelRef{{Provider: "main", Model: "a"}},
			Embedders:  []config.AIModelRef{{Provider: "main", Model: "e1"}},
		}
	}

	cfg := base()
	cfg.Embedders = append(cfg.Embedders, config.AIModelRef{Provider: "main", Model: "e2"})
	_, _, err := BuildFromConfig(cfg)
	require.ErrorContains(t, err, "exactly one ai embedder")

	cfg = base()
	cfg.Generators = append(cfg.Generators, config.AIModelRef{Provider: "main", Model: "b"})
	_, _, err = BuildFromConfig(cfg)
	require.ErrorContains(t, err, "generator_fallback")

	cfg.GeneratorFallback = true
	_, _, err = BuildFromConfig(cfg)
	require.NoError(t, err)
}

func TestEmbedderFailureIsNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	cfg := config.AIConfig{
		Providers:  []config.AIProviderConfig{{Name: "main", Type: "openai", Data: map[string]interface{}{"api_key": "k", "base_url": srv.URL}}},
		Generators: []config.AIModelRef{{Provider: "main", Model: "a"}},
		Embedders:  []config.AIModelRef{{Provider: "main", Model: "e1"}},
	}
	_, emb, err := BuildFromConfig(cfg)
	require.NoError(t, err)
	_, err = emb.Embed(context.Background(), []string{"q"}, TaskRetrievalQuery)
	require.Error(t, err)
	require.Equal(t, "main/e1", emb.ModelName())
}
