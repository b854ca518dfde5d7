package audio

import (
	"fmt"
	"os"
	"path/filepath"
)

// Archive writes assembled replies to a directory as WAV files
type Archive struct {
	dir string
}

// NewArchive creates the target directory if needed
func NewArchive(dir string) (*Archive, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory %s: %w", dir, err)
	}
	return &Archive{dir: dir}, nil
}

// Save stores a reply as <session>-<turn>.wav and returns the file path
func (a *Archive) Save(sessionID string, turn uint64, playable *PlayableAudio) (string, error) {
	data, err := EncodeWAV(playable.Format, playable.Data)
	if err != nil {
		return "", fmt.Errorf("failed to encode reply: %w", err)
	}

	path := filepath.Join(a.dir, fmt.Sprintf("%s-%04d.wav", sessionID, turn))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	return path, nil
}
