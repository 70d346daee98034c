// Package media turns clip content references into playable URLs, measures
// source durations and serves the local media directory.
package media

import (
	"errors"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

const Scheme = "media://"

var (
	ErrEmptyRef   = errors.New("empty media reference")
	ErrInvalidRef = errors.New("invalid media reference")
)

// Resolver maps stored content references to URLs. Remote URLs pass through;
// media:// names and bare relative names point at the agent's /media route.
type Resolver struct {
	baseURL  string
	mediaDir string
}

func NewResolver(baseURL, mediaDir string) *Resolver {
	return &Resolver{baseURL: strings.TrimRight(baseURL, "/"), mediaDir: mediaDir}
}

// Resolve is idempotent: resolving its own output returns it unchanged.
func (r *Resolver) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", ErrEmptyRef
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		if _, err := url.Parse(ref); err != nil {
			return "", ErrInvalidRef
		}
		return ref, nil
	case strings.HasPrefix(ref, "file://"):
		return filepath.Clean(strings.TrimPrefix(ref, "file://")), nil
	case filepath.IsAbs(ref):
		return filepath.Clean(ref), nil
	}

	name, err := mediaName(strings.TrimPrefix(ref, Scheme))
	if err != nil {
		return "", err
	}
	return r.baseURL + "/media/" + escapePath(name), nil
}

// LocalPath returns the file behind a reference or resolved URL when it lives
// in the media directory or elsewhere on disk.
func (r *Resolver) LocalPath(ref string) (string, bool) {
	resolved, err := r.Resolve(ref)
	if err != nil {
		return "", false
	}
	prefix := r.baseURL + "/media/"
	if rest, ok := strings.CutPrefix(resolved, prefix); ok {
		if r.mediaDir == "" {
			return "", false
		}
		name, err := url.PathUnescape(rest)
		if err != nil {
			return "", false
		}
		return filepath.Join(r.mediaDir, filepath.FromSlash(name)), true
	}
	if filepath.IsAbs(resolved) {
		return resolved, true
	}
	return "", false
}

func mediaName(name string) (string, error) {
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return "", ErrEmptyRef
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", ErrInvalidRef
		}
	}
	return path.Clean(name), nil
}

func escapePath(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
