package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/memorec/internal/audio"
	"github.com/yegors/memorec/internal/capture"
	"github.com/yegors/memorec/internal/config"
	"github.com/yegors/memorec/internal/segment"
)

func TestLoadConfigAppliesFlags(t *testing.T) {
	cfg, err := loadConfig(flags{
		modelPath: "/opt/model",
		backend:   "vosk",
		encoder:   "raw",
		serve:     ":8081",
		logLevel:  "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, "/opt/model", cfg.Recognizer.ModelPath)
	assert.Equal(t, "vosk", cfg.Recognizer.Backend)
	assert.Equal(t, "raw", cfg.Encoder.Type)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, ":8081", cfg.Server.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigRejectsBadFlags(t *testing.T) {
	_, err := loadConfig(flags{backend: "sphinx"})
	assert.Error(t, err)

	_, err = loadConfig(flags{encoder: "wav"})
	assert.Error(t, err)
}

func TestComponentsFollowConfig(t *testing.T) {
	cfg := config.Default()
	format := audio.Format{SampleRate: 16000, Channels: 1}

	assert.IsType(t, segment.FFmpegEncoder{}, newEncoder(cfg, format))
	assert.IsType(t, capture.FFmpegDevice{}, newDevice(cfg, format))

	cfg.Encoder.Type = "raw"
	cfg.Capture.Device = "arecord"
	assert.IsType(t, segment.RawEncoder{}, newEncoder(cfg, format))
	assert.IsType(t, capture.ArecordDevice{}, newDevice(cfg, format))

	cfg.Capture.Device = "portaudio"
	assert.Equal(t, "portaudio", newDevice(cfg, format).Name())

	assert.Nil(t, viewerIndex(nil))
	cfg.Server.Metrics = false
	assert.Nil(t, gathererFor(cfg, nil))
}

func TestUsageExplainsWhenModelIsRequired(t *testing.T) {
	assert.Contains(t, usage, "(-model) must exist at startup")
	assert.Contains(t, usage, "-tags vosk")
	assert.Contains(t, usage, "-backend vosk-server")
}

func TestRunFailsWithoutModelForVoskBackend(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-model")
	args := os.Args
	t.Cleanup(func() { os.Args = args })
	os.Args = []string{"memorec", "-backend", "vosk", "-model", missing, t.TempDir()}

	assert.Equal(t, 1, run())
	_, err := os.Stat(filepath.Join(os.Args[len(os.Args)-1], "memo.html"))
	assert.True(t, os.IsNotExist(err), "nothing is recorded when the model is missing")
}

