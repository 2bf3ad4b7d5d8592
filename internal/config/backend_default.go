//go:build !vosk

package config

// Without libvosk compiled in, recognition goes to a vosk-server by default.
const defaultBackend = "vosk-server"
