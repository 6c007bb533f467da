package crewai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLLMDefaults(t *testing.T) {
	assert.Equal(t, defaultModel, resolveLLM(nil))
	assert.Equal(t, defaultModel, resolveLLM("   "))
	assert.Equal(t, defaultModel, resolveLLM(map[string]any{"temperature": 0.2}))
	assert.Equal(t, defaultModel, resolveLLM(42))
}

func TestResolveLLMCatalogHit(t *testing.T) {
	handle := resolveLLM("gpt-4o")

	llm, ok := handle.(*LLM)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", llm.Model)
	assert.Equal(t, "openai", llm.Provider)
	assert.Equal(t, 128000, llm.Params["context_window"])
}

func TestResolveLLMFallsBackToRawString(t *testing.T) {
	// Unknown models degrade to the literal string rather than
	// failing agent construction.
	handle := resolveLLM("gpt-4-turbo-preview-nightly")
	assert.Equal(t, "gpt-4-turbo-preview-nightly", handle)
}

func TestResolveLLMMapOverrides(t *testing.T) {
	handle := resolveLLM(map[string]any{
		"model":       "gpt-4o-mini",
		"temperature": 0.3,
		"max_tokens":  512,
	})

	llm, ok := handle.(*LLM)
	require.True(t, ok)
	assert.Equal(t, 0.3, llm.Params["temperature"])
	assert.Equal(t, 512, llm.Params["max_tokens"])
}

func TestReasoningFamilyTransform(t *testing.T) {
	handle := resolveLLM(map[string]any{
		"model":       "gpt-5",
		"max_tokens":  2048,
		"stop":        []string{"END"},
		"temperature": 0.1,
	})

	llm, ok := handle.(*LLM)
	require.True(t, ok)
	assert.Equal(t, 2048, llm.Params["max_completion_tokens"])
	assert.NotContains(t, llm.Params, "max_tokens")
	assert.NotContains(t, llm.Params, "stop")
	assert.Equal(t, 1, llm.Params["temperature"])
}

func TestReasoningFamilyMatchesO1(t *testing.T) {
	handle := resolveLLM(map[string]any{"model": "o1", "max_tokens": 100})

	llm, ok := handle.(*LLM)
	require.True(t, ok)
	assert.Equal(t, 100, llm.Params["max_completion_tokens"])
}

func TestClassicFamilyKeepsParams(t *testing.T) {
	handle := resolveLLM(map[string]any{"model": "gpt-4", "max_tokens": 100, "stop": "END"})

	llm, ok := handle.(*LLM)
	require.True(t, ok)
	assert.Equal(t, 100, llm.Params["max_tokens"])
	assert.Equal(t, "END", llm.Params["stop"])
}

func TestLLMModelName(t *testing.T) {
	assert.Equal(t, "gpt-4", llmModelName("gpt-4"))
	assert.Equal(t, "o1", llmModelName(&LLM{Model: "o1"}))
	assert.Equal(t, defaultModel, llmModelName(""))
	assert.Equal(t, defaultModel, llmModelName(nil))
}
