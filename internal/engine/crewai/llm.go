package crewai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/murtihash94/kasal/internal/secret"
	"github.com/murtihash94/kasal/pkg/env"
	"github.com/murtihash94/kasal/pkg/log"
)

// defaultModel is the hardcoded fallback when no usable model
// name can be recovered from an agent's LLM spec.
const defaultModel = "gpt-4o-mini"

// LLM is a fully resolved model handle: a catalog entry overlaid
// with any explicit parameter overrides from the agent spec.
type LLM struct {
	Model    string         `json:"model"`
	Provider string         `json:"provider,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
}

// providerConfig is one row of the model catalog.
type providerConfig struct {
	provider      string
	contextWindow int
}

// modelCatalog maps known model names to provider
// configuration. Unknown names fail resolution, which degrades
// to the raw string rather than aborting agent construction.
var modelCatalog = map[string]providerConfig{
	"gpt-4":                    {provider: "openai", contextWindow: 8192},
	"gpt-4o":                   {provider: "openai", contextWindow: 128000},
	"gpt-4o-mini":              {provider: "openai", contextWindow: 128000},
	"gpt-5":                    {provider: "openai", contextWindow: 272000},
	"gpt-5-mini":               {provider: "openai", contextWindow: 272000},
	"o1":                       {provider: "openai", contextWindow: 200000},
	"o3-mini":                  {provider: "openai", contextWindow: 200000},
	"claude-sonnet-4":          {provider: "anthropic", contextWindow: 200000},
	"databricks-meta-llama-3-70b": {provider: "databricks", contextWindow: 128000},
}

// paramTransform rewrites provider parameters for a model
// family before the handle is constructed.
type paramTransform func(map[string]any) map[string]any

// familyTransforms is the strategy table keyed by model-name
// pattern. First match wins.
var familyTransforms = []struct {
	pattern   *regexp.Regexp
	transform paramTransform
}{
	// Reasoning-style models reject the classic completion
	// knobs: max_tokens becomes max_completion_tokens, stop is
	// unsupported, and temperature is pinned to 1.
	{regexp.MustCompile(`(?i)^(gpt-5|o[13])`), reasoningParams},
}

func reasoningParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		switch k {
		case "max_tokens":
			out["max_completion_tokens"] = v
		case "stop":
			// unsupported by the family
		case "temperature":
			out["temperature"] = 1
		default:
			out[k] = v
		}
	}
	return out
}

func transformForModel(model string) paramTransform {
	for _, entry := range familyTransforms {
		if entry.pattern.MatchString(model) {
			return entry.transform
		}
	}
	return nil
}

// resolveLLM materializes an LLM handle from an agent's llm
// spec, which is either a bare model name (string) or a
// parameterized config (map with a "model" key). Resolution
// failures degrade to the raw string (or the default model
// name) rather than failing agent construction.
func resolveLLM(spec any) any {
	switch v := spec.(type) {
	case nil:
		return defaultModel
	case string:
		if strings.TrimSpace(v) == "" {
			return defaultModel
		}
		handle, err := lookupModel(v, nil)
		if err != nil {
			log.Warn("llm resolution failed, falling back to raw model name", "model", v, "error", err)
			return v
		}
		return handle
	case map[string]any:
		name, _ := v["model"].(string)
		if strings.TrimSpace(name) == "" {
			log.Warn("llm config missing model key, using default", "config", v)
			return defaultModel
		}

		overrides := make(map[string]any, len(v))
		for k, val := range v {
			if k != "model" {
				overrides[k] = val
			}
		}

		handle, err := lookupModel(name, overrides)
		if err != nil {
			log.Warn("llm resolution failed, falling back to raw model name", "model", name, "error", err)
			return name
		}
		return handle
	default:
		log.Warn("unsupported llm spec shape, using default", "spec", fmt.Sprintf("%T", spec))
		return defaultModel
	}
}

func lookupModel(name string, overrides map[string]any) (*LLM, error) {
	cfg, ok := modelCatalog[name]
	if !ok {
		return nil, fmt.Errorf("model %q not in catalog", name)
	}

	params := map[string]any{
		"context_window": cfg.contextWindow,
	}
	for k, v := range overrides {
		params[k] = v
	}

	if transform := transformForModel(name); transform != nil {
		params = transform(params)
	}

	return &LLM{Model: name, Provider: cfg.provider, Params: params}, nil
}

// llmModelName recovers a usable completion model name from a
// resolved handle, whatever shape resolution produced.
func llmModelName(handle any) string {
	switch v := handle.(type) {
	case *LLM:
		return v.Model
	case string:
		if v != "" {
			return v
		}
	}
	return defaultModel
}

// CompletionRequest is one chat completion call.
type CompletionRequest struct {
	Model  string
	System string
	Prompt string
}

// CompletionClient abstracts the LLM provider so the runtime is
// testable without network access.
type CompletionClient interface {
	Complete(ctx context.Context, req *CompletionRequest) (string, error)
}

// httpCompletionClient talks to an OpenAI-compatible chat
// completions endpoint configured through the environment.
type httpCompletionClient struct {
	baseURL  string
	keyRef   string
	resolver secret.Resolver
	client   *http.Client
}

func newHTTPCompletionClient(resolver secret.Resolver) *httpCompletionClient {
	vars := env.Variables()
	return &httpCompletionClient{
		baseURL:  strings.TrimSuffix(vars.LLMBaseURL, "/"),
		keyRef:   vars.LLMAPIKeyRef,
		resolver: resolver,
		client:   &http.Client{Timeout: vars.LLMTimeout},
	}
}

func (c *httpCompletionClient) Complete(ctx context.Context, req *CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = env.Variables().LLMModel
	}

	payload := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": req.System},
			{"role": "user", "content": req.Prompt},
		},
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	key, err := secret.ResolveValue(ctx, c.resolver, c.keyRef)
	if err != nil {
		return "", fmt.Errorf("resolve llm api key: %w", err)
	}
	if key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("llm provider responded %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm provider returned no choices")
	}

	return out.Choices[0].Message.Content, nil
}
