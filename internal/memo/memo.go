// Package memo writes memo.html, the append-only transcript that interleaves
// recognized text with audio embeds for the clips covering it.
package memo

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/flosch/pongo2/v6"
)

// FileName is the name of the transcript inside the destination directory
const FileName = "memo.html"

// ErrClosed is returned by appends after Close
var ErrClosed = errors.New("memo closed")

var (
	preambleTemplate = pongo2.Must(pongo2.FromString(`<meta charset="utf-8">
<script>
  const audios = document.getElementsByTagName('audio')
  setTimeout(() => {
    Array.from(audios).forEach((audio) => {
      audio.playbackRate = {{ rate }}
    })
  }, {{ delay_ms }})
</script>
`))
	textTemplate  = pongo2.Must(pongo2.FromString("<p>({{ time }}) {{ text }}。</p>\n"))
	audioTemplate = pongo2.Must(pongo2.FromString("<audio controls src=\"{{ src }}\"></audio>\n"))
)

// Options control the preamble written at the top of the memo
type Options struct {
	PlaybackRate  float64
	PlaybackDelay time.Duration
}

// DefaultOptions matches the viewer behavior the memo was designed for
func DefaultOptions() Options {
	return Options{PlaybackRate: 2, PlaybackDelay: time.Second}
}

// Memo is an open transcript document
type Memo struct {
	path string

	mu      sync.Mutex
	file    *os.File
	entries int
	closed  bool
}

// Open creates the memo at path and writes the preamble exactly once
func Open(path string, opts Options) (*Memo, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create memo: %w", err)
	}

	err = preambleTemplate.ExecuteWriter(pongo2.Context{
		"rate":     strconv.FormatFloat(opts.PlaybackRate, 'f', -1, 64),
		"delay_ms": opts.PlaybackDelay.Milliseconds(),
	}, file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write memo preamble: %w", err)
	}

	return &Memo{path: path, file: file}, nil
}

// Path returns where the memo is written
func (m *Memo) Path() string {
	return m.path
}

// Entries returns how many entries were appended
func (m *Memo) Entries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries
}

// Normalize strips every whitespace rune. Recognizers for languages written
// without spaces emit token separators that are not part of the text.
func Normalize(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '\uFEFF' {
			return -1
		}
		return r
	}, text)
}

// IsEmpty reports whether text normalizes to nothing
func IsEmpty(text string) bool {
	return Normalize(text) == ""
}

// AppendText appends a timestamped text entry. Text that normalizes to
// nothing is suppressed and AppendText returns false.
func (m *Memo) AppendText(text string, at time.Time) (bool, error) {
	normalized := Normalize(text)
	if normalized == "" {
		return false, nil
	}
	return true, m.appendText(normalized, at)
}

// AppendFinalText appends the shutdown entry. Unlike AppendText it never
// suppresses, so an empty final result still yields an entry.
func (m *Memo) AppendFinalText(text string, at time.Time) error {
	return m.appendText(Normalize(text), at)
}

func (m *Memo) appendText(normalized string, at time.Time) error {
	return m.render(textTemplate, pongo2.Context{
		"time": at.Local().Format("15:04:05"),
		"text": normalized,
	})
}

// AppendAudioRef appends an embed for a closed segment file
func (m *Memo) AppendAudioRef(fileName string) error {
	return m.render(audioTemplate, pongo2.Context{"src": fileName})
}

func (m *Memo) render(tpl *pongo2.Template, ctx pongo2.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if err := tpl.ExecuteWriter(ctx, m.file); err != nil {
		return fmt.Errorf("failed to append memo entry: %w", err)
	}
	m.entries++
	return nil
}

// Close finalizes the memo; further appends fail with ErrClosed
func (m *Memo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if err := m.file.Sync(); err != nil {
		m.file.Close()
		return fmt.Errorf("failed to sync memo: %w", err)
	}
	return m.file.Close()
}
