//go:build vosk

package config

// Builds with libvosk recognize in-process from the model directory.
const defaultBackend = "vosk"
