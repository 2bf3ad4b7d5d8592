//go:build !vosk

package recognizer

import (
	"errors"

	"github.com/yegors/memorec/internal/audio"
	"github.com/yegors/memorec/pkg/logger"
)

// NewVosk is unavailable in builds without the vosk tag
func NewVosk(modelPath string, format audio.Format, log *logger.Logger) (Session, error) {
	return nil, errors.New("built without libvosk support (rebuild with -tags vosk, or use backend vosk-server)")
}
