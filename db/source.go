package db

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"mlserve/ml"
)

// RegistrySource fetches the current best registered model. Parsed
// artifacts are cached by version so swapping back to a recently served
// version skips the decode; the Model itself is rebuilt on every fetch
// with a fresh load time.
type RegistrySource struct {
	cache *lru.Cache[string, *ml.Artifact]
}

func NewRegistrySource(cacheSize int) (*RegistrySource, error) {
	cache, err := lru.New[string, *ml.Artifact](cacheSize)
	if err != nil {
		return nil, err
	}
	return &RegistrySource{cache: cache}, nil
}

func (s *RegistrySource) Fetch(ctx context.Context) (*ml.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ml.LoadError{Source: "registry", Err: err}
	}

	rec, err := BestModel()
	if err != nil {
		return nil, &ml.LoadError{Source: "registry", Err: err}
	}

	artifact, ok := s.cache.Get(rec.Version)
	if !ok {
		artifact, err = ml.ReadArtifact(rec.Path)
		if err != nil {
			return nil, err
		}
		if artifact.ModelType != rec.ModelType {
			return nil, &ml.LoadError{
				Source: rec.Path,
				Err:    fmt.Errorf("artifact type %q does not match registry entry %q", artifact.ModelType, rec.ModelType),
			}
		}
		s.cache.Add(rec.Version, artifact)
	}

	return artifact.Build(rec.Version, time.Now().UTC())
}
