package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// LocalStore keeps artifacts in a directory whose lifecycle is managed
// outside the service: it is never created here.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

func (s *LocalStore) Record(ctx context.Context, duration time.Duration, png []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(s.dir, NewArtifact(duration).Name())
	if err := os.WriteFile(path, png, 0o644); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

func (s *LocalStore) List(ctx context.Context) ([]float64, error) {
	names, err := s.names()
	if err != nil {
		return nil, err
	}
	return durationsFromNames(names), nil
}

func (s *LocalStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	names, err := s.names()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, n := range names {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		a, ok := ParseArtifactName(n)
		if !ok || !a.ID.Time().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, n)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove %s: %w", n, err)
		}
		removed++
	}
	return removed, nil
}

func (s *LocalStore) names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
