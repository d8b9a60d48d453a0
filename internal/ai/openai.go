package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	defaultOpenAIBaseURL  = "https://api.openai.com/v1"
	defaultMistralBaseURL = "https://api.mistral.ai/v1"
)

type openAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

// openAICompatProvider speaks the OpenAI chat completions and embeddings
// wire format, which mistral and openrouter also accept.
type openAICompatProvider struct {
	name     string
	apiKey   string
	baseURL  string
	headers  map[string]string
	canEmbed bool
	client   *http.Client
}

type openAIChatRequest struct {
	Model    string          `json:"model"`
	Messages []openAIChatMsg `json:"messages"`
	Stream   bool            `json:"stream"`
}

type openAIChatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func newOpenAICompat(name, apiKey, baseURL string, canEmbed bool) *openAICompatProvider {
	return &openAICompatProvider{
		name:     name,
		apiKey:   strings.TrimSpace(apiKey),
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		headers:  map[string]string{},
		canEmbed: canEmbed,
		client:   &http.Client{Timeout: 2 * time.Minute},
	}
}

func (p *openAICompatProvider) Name() string {
	return p.name
}

func (p *openAICompatProvider) Generate(ctx context.Context, model string, system string, prompt string) (string, error) {
	if p.apiKey == "" {
		return "", ErrUnavailable
	}
	msgs := make([]openAIChatMsg, 0, 2)
	if system != "" {
		msgs = append(msgs, openAIChatMsg{Role: "system", Content: system})
	}
	msgs = append(msgs, openAIChatMsg{Role: "user", Content: prompt})
	var out openAIChatResponse
	if err := p.post(ctx, "/chat/completions", openAIChatRequest{Model: model, Messages: msgs}, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%s response has no choices", p.name)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (p *openAICompatProvider) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	if !p.canEmbed {
		return nil, fmt.Errorf("%s: %w", p.name, ErrUnsupported)
	}
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	var out openAIEmbedResponse
	if err := p.post(ctx, "/embeddings", openAIEmbedRequest{Model: model, Input: texts}, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("%s response has no embeddings", p.name)
	}
	sort.SliceStable(out.Data, func(i, j int) bool {
		return out.Data[i].Index < out.Data[j].Index
	})
	res := make([][]float32, 0, len(out.Data))
	for _, item := range out.Data {
		res = append(res, item.Embedding)
	}
	return res, nil
}

func (p *openAICompatProvider) post(ctx context.Context, path string, body interface{}, dst interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s request failed: %s: %s", p.name, resp.Status, strings.TrimSpace(string(raw)))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func openAICompatFactory(name, defaultBaseURL string) ProviderFactory {
	return func(args interface{}) (IProvider, error) {
		cfg := &openAIConfig{}
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
		baseURL := strings.TrimSpace(cfg.BaseURL)
		if baseURL == "" {
			baseURL = defaultBaseURL
		}
		return newOpenAICompat(name, cfg.APIKey, baseURL, true), nil
	}
}

func init() {
	Register("openai", openAICompatFactory("openai", defaultOpenAIBaseURL))
	Register("mistral", openAICompatFactory("mistral", defaultMistralBaseURL))
}
