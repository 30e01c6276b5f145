package ml

import (
	"context"
	"fmt"
	"os"
	"time"
)

// FileSource loads the artifact from a fixed path. The reported version
// is the artifact's own version, falling back to path@mtime for artifacts
// written without one.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) Fetch(ctx context.Context) (*Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, &LoadError{Source: s.Path, Err: err}
	}
	artifact, err := ReadArtifact(s.Path)
	if err != nil {
		return nil, err
	}
	version := artifact.Version
	if version == "" {
		info, err := os.Stat(s.Path)
		if err != nil {
			return nil, &LoadError{Source: s.Path, Err: err}
		}
		version = fmt.Sprintf("%s@%d", s.Path, info.ModTime().Unix())
	}
	return artifact.Build(version, time.Now().UTC())
}
