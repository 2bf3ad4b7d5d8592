//go:build vosk

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoskBuildRequiresModelByDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "vosk", cfg.Recognizer.Backend)
	assert.True(t, cfg.Recognizer.NeedsModelDirectory())
}
