// Package samples keeps the most recent generated image on disk. It is not
// an archive: Clear empties the directory before each new render.
package samples

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"promptpaint/logging"
)

const (
	// DefaultDir is relative to the working directory.
	DefaultDir = "data/samples"

	// Extension is the only file type the store writes or clears.
	Extension = ".png"

	// TimestampLayout formats the second-resolution suffix, YYYYMMDD_HHMMSS.
	TimestampLayout = "20060102_150405"

	// MaxNameTokens is how many prompt tokens go into a file name.
	MaxNameTokens = 5
)

// Store manages a single flat directory of PNG files.
type Store struct {
	dir    string
	logger *logging.Logger
	now    func() time.Time
	remove func(string) error
}

// NewStore creates a Store over dir. The directory is created lazily.
func NewStore(dir string, logger *logging.Logger) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		dir:    dir,
		logger: logger.Named("samples"),
		now:    time.Now,
		remove: os.Remove,
	}
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string {
	return s.dir
}

// Clear ensures the directory exists and removes every *.png entry directly
// inside it that is not a directory, symlinks included. A file that cannot be removed is logged and skipped;
// only a failure to create or list the directory is returned.
func (s *Store) Clear() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != Extension {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := s.remove(path); err != nil {
			s.logger.Warn("could not delete sample", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}

	s.logger.Debug("cleared samples", zap.String("dir", s.dir), zap.Int("removed", removed))
	return nil
}

// Save writes data under a name derived from prompt and the current second
// and returns the path. A second Save with the same prompt in the same
// second overwrites the first. Write errors are returned unchanged.
func (s *Store) Save(data []byte, prompt string) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, FileName(prompt, s.now()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}

	s.logger.Info("sample saved", zap.String("path", path), zap.Int("bytes", len(data)))
	return path, nil
}

// FileName builds "{tokens}_{YYYYMMDD_HHMMSS}.png" from the first five
// whitespace tokens of prompt joined by underscores. Path separators inside
// tokens become '-' so a prompt cannot escape the directory.
func FileName(prompt string, at time.Time) string {
	tokens := strings.Fields(prompt)
	if len(tokens) > MaxNameTokens {
		tokens = tokens[:MaxNameTokens]
	}
	for i, tok := range tokens {
		tokens[i] = strings.NewReplacer("/", "-", `\`, "-").Replace(tok)
	}
	return fmt.Sprintf("%s_%s%s", strings.Join(tokens, "_"), at.Format(TimestampLayout), Extension)
}
