package profiles

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/rm-hull/hideaway/internal/mobileconfig"
	"golang.org/x/sync/errgroup"
)

const RemovalFileName = "remove_restrictions" + mobileconfig.FileExtension

// FocusModeFileName is the file a preset is written to, e.g. "Study Mode"
// becomes focus_mode_study_mode.mobileconfig.
func FocusModeFileName(preset string) string {
	return "focus_mode_" + strings.ReplaceAll(strings.ToLower(preset), " ", "_") + mobileconfig.FileExtension
}

// FocusModes writes one block profile per catalog preset plus the removal
// profile into dir and returns the paths written, sorted.
func (c *Composer) FocusModes(ctx context.Context, dir string) ([]string, error) {
	var (
		mu    sync.Mutex
		paths []string
	)

	write := func(filename string, compose func() (*mobileconfig.Profile, error)) func() error {
		return func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			profile, err := compose()
			if err != nil {
				return err
			}
			path, err := mobileconfig.WriteFile(filepath.Join(dir, filename), profile)
			if err != nil {
				return err
			}

			mu.Lock()
			paths = append(paths, path)
			mu.Unlock()
			return nil
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, preset := range c.Catalog().Presets() {
		g.Go(write(FocusModeFileName(preset.Name), func() (*mobileconfig.Profile, error) {
			return c.Preset(preset.Name)
		}))
	}
	g.Go(write(RemovalFileName, c.Unblock))

	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "failed to write focus mode profiles")
	}

	slices.Sort(paths)
	c.logger.Info("Focus mode profiles written", "dir", dir, "count", humanize.Comma(int64(len(paths))))
	return paths, nil
}
