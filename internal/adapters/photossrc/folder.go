// Package photossrc indexes a local photo folder for the slideshow widget.
package photossrc

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MirDochEgal555/Dashboard/internal/dashboard"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

// Source scans one folder for images.
type Source struct {
	folder string
}

// New creates a folder scanning source.
func New(folder string) *Source {
	return &Source{folder: folder}
}

func (s *Source) Name() string { return "photos" }

func (s *Source) Fetch(ctx context.Context) (any, error) {
	var items []dashboard.PhotoItem
	err := filepath.WalkDir(s.folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			// Hidden directories hold thumbnails and sync state, not photos.
			if path != s.folder && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(s.folder, path)
		if err != nil {
			return err
		}
		items = append(items, dashboard.PhotoItem{
			Path:    filepath.ToSlash(rel),
			Caption: captionFromFilename(d.Name()),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning photo folder %s: %w", s.folder, err)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items, nil
}

// captionFromFilename turns "summer_trip-2025.jpg" into "summer trip 2025".
func captionFromFilename(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	stem = strings.ReplaceAll(stem, "_", " ")
	stem = strings.ReplaceAll(stem, "-", " ")
	return strings.Join(strings.Fields(stem), " ")
}
