package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phuslu/log"
)

// UploadSweeper removes spooled uploads left behind by crashed runs.
type UploadSweeper struct {
	dir    string
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewUploadSweeper(dir, prefix string, ttl time.Duration) *UploadSweeper {
	return &UploadSweeper{dir: dir, prefix: prefix, ttl: ttl, now: time.Now}
}

// ProcessJobs deletes every file in dir that carries the upload prefix and
// was last modified more than ttl ago.
func (s *UploadSweeper) ProcessJobs(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read upload dir: %w", err)
	}

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), s.prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("failed to remove stale upload")
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Str("dir", s.dir).Msg("stale uploads removed")
	}
	return nil
}
