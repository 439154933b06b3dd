package hypothesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPGeneratorRequiresAPIKey(t *testing.T) {
	_, err := NewHTTPGenerator("", "", "gpt-4o-mini")
	require.Error(t, err)
}

func TestNewHTTPGeneratorDefaultsBaseURL(t *testing.T) {
	g, err := NewHTTPGenerator("", "sk-test", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", g.baseURL)
}

func TestNewHTTPGeneratorHonorsCustomBaseURL(t *testing.T) {
	g, err := NewHTTPGenerator("https://gateway.internal/v1/chat/completions", "sk-test", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "https://gateway.internal/v1/chat/completions", g.baseURL)
}
