// Package storage persists per-request diagnostic artifacts: the PNG a
// request produced, named after how long it took to produce.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
)

// ErrUnavailable indicates the artifact location does not exist or cannot be read.
var ErrUnavailable = errors.New("diagnostics storage unavailable")

const artifactExt = ".png"

// ArtifactStore records and lists processing artifacts.
type ArtifactStore interface {
	// Record persists one artifact for a completed request.
	Record(ctx context.Context, duration time.Duration, png []byte) error
	// List returns recorded durations in seconds, oldest first.
	List(ctx context.Context) ([]float64, error)
	// Prune deletes artifacts recorded before cutoff and reports how many went.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// Artifact is a parsed artifact name.
type Artifact struct {
	ID       ksuid.KSUID
	Duration time.Duration
}

// Name renders the artifact name "<ksuid>_<millis>.png". KSUIDs sort by
// creation time, so lexical order is chronological.
func (a Artifact) Name() string {
	return fmt.Sprintf("%s_%d%s", a.ID.String(), a.Duration.Milliseconds(), artifactExt)
}

// NewArtifact names an artifact recorded now.
func NewArtifact(duration time.Duration) Artifact {
	return Artifact{ID: ksuid.New(), Duration: duration}
}

// ParseArtifactName is the inverse of Artifact.Name.
func ParseArtifactName(name string) (Artifact, bool) {
	base, ok := strings.CutSuffix(name, artifactExt)
	if !ok {
		return Artifact{}, false
	}
	idPart, msPart, ok := strings.Cut(base, "_")
	if !ok {
		return Artifact{}, false
	}
	id, err := ksuid.Parse(idPart)
	if err != nil {
		return Artifact{}, false
	}
	ms, err := strconv.ParseInt(msPart, 10, 64)
	if err != nil || ms < 0 {
		return Artifact{}, false
	}
	return Artifact{ID: id, Duration: time.Duration(ms) * time.Millisecond}, true
}

// durationsFromNames parses names, drops foreign files and returns seconds
// in chronological order.
func durationsFromNames(names []string) []float64 {
	artifacts := make([]Artifact, 0, len(names))
	for _, n := range names {
		if a, ok := ParseArtifactName(n); ok {
			artifacts = append(artifacts, a)
		}
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return ksuid.Compare(artifacts[i].ID, artifacts[j].ID) < 0
	})

	out := make([]float64, len(artifacts))
	for i, a := range artifacts {
		out[i] = float64(a.Duration.Milliseconds()) / 1000
	}
	return out
}

// NoopStore discards artifacts.
type NoopStore struct{}

func (NoopStore) Record(context.Context, time.Duration, []byte) error { return nil }
func (NoopStore) List(context.Context) ([]float64, error)             { return []float64{}, nil }
func (NoopStore) Prune(context.Context, time.Time) (int, error)       { return 0, nil }
