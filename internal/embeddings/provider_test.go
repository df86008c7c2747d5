package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_Explicit(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Provider: "openai", OpenAIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", p.Model())
	assert.Equal(t, 1536, p.Dimension())

	p, err = NewProvider(ProviderConfig{Provider: "voyage", VoyageKey: "vk-test"})
	require.NoError(t, err)
	assert.Equal(t, "voyage-3-lite", p.Model())
	assert.Equal(t, 512, p.Dimension())
}

func TestNewProvider_MissingCredential(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Provider: "openai"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewProvider(ProviderConfig{Provider: "voyage"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewProvider(ProviderConfig{Provider: "auto"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewProvider_AutoPrefersVoyage(t *testing.T) {
	p, err := NewProvider(ProviderConfig{
		Provider:  "auto",
		OpenAIKey: "sk-test",
		VoyageKey: "vk-test",
	})
	require.NoError(t, err)
	_, isVoyage := p.(*voyageProvider)
	assert.True(t, isVoyage, "auto should prefer voyage when its key is set")
}

func TestNewProvider_AutoFallsBackToOpenAI(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Provider: "auto", OpenAIKey: "sk-test"})
	require.NoError(t, err)
	_, isOpenAI := p.(*openAIProvider)
	assert.True(t, isOpenAI)
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Provider: "cohere", OpenAIKey: "sk"})
	assert.Error(t, err)
}

func TestModelDimensions(t *testing.T) {
	p, err := NewProvider(ProviderConfig{
		Provider:    "openai",
		OpenAIKey:   "sk-test",
		OpenAIModel: "text-embedding-3-large",
	})
	require.NoError(t, err)
	assert.Equal(t, 3072, p.Dimension())

	p, err = NewProvider(ProviderConfig{
		Provider:    "voyage",
		VoyageKey:   "vk-test",
		VoyageModel: "voyage-3",
	})
	require.NoError(t, err)
	assert.Equal(t, 1024, p.Dimension())
}
