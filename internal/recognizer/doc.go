// Package recognizer adapts speech recognition engines to a frame-by-frame
// session: feed audio, learn when an utterance ended, fetch its text.
//
// Backends:
//   - vosk-server: the Vosk websocket protocol (default)
//   - vosk: libvosk linked in-process (build tag vosk)
//   - openai: energy VAD boundaries, each utterance transcribed by OpenAI
package recognizer
