package resolver

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"soundfleet/internal/music/track"

	"github.com/cockroachdb/errors"
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
	".flac": true,
	".m4a":  true,
}

// Library resolves names against a directory of local audio files. The
// soundboard worker uses it as its clip library.
type Library struct {
	dir string
}

// NewLibrary creates a Library rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

func (l *Library) Name() track.Source { return track.SourceLocal }

// Match reports whether input names an existing file in the library.
func (l *Library) Match(input string) bool {
	if l.dir == "" || isURL(input) {
		return false
	}
	_, err := l.lookup(input)
	return err == nil
}

// Resolve returns a single local track for a known file name.
func (l *Library) Resolve(_ context.Context, input string) ([]track.Track, error) {
	path, err := l.lookup(input)
	if err != nil {
		return nil, errors.Wrapf(ErrNoResults, "no local file named %q", input)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return []track.Track{{
		Title:   name,
		URL:     path,
		IsLocal: true,
		Source:  track.SourceLocal,
	}}, nil
}

// List returns the names of every playable file in the library.
func (l *Library) List() []string {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(names)
	return names
}

// lookup finds the file for a bare name, trying known audio extensions.
// Path escapes outside the library directory are rejected.
func (l *Library) lookup(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.Contains(input, "..") {
		return "", errors.New("invalid name")
	}

	candidates := []string{filepath.Join(l.dir, input)}
	if filepath.Ext(input) == "" {
		for ext := range audioExtensions {
			candidates = append(candidates, filepath.Join(l.dir, input+ext))
		}
	}

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if audioExtensions[strings.ToLower(filepath.Ext(path))] {
			return path, nil
		}
	}
	return "", errors.Newf("no such local file: %s", input)
}
