package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, dir string, at time.Time, d time.Duration) string {
	t.Helper()
	id, err := ksuid.NewRandomWithTime(at)
	require.NoError(t, err)
	name := Artifact{ID: id, Duration: d}.Name()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("png"), 0o644))
	return name
}

func TestArtifactName_RoundTrip(t *testing.T) {
	a := NewArtifact(1234 * time.Millisecond)

	parsed, ok := ParseArtifactName(a.Name())
	require.True(t, ok)
	assert.Equal(t, a.ID, parsed.ID)
	assert.Equal(t, 1234*time.Millisecond, parsed.Duration)
}

func TestParseArtifactName_Rejects(t *testing.T) {
	for _, name := range []string{
		"1234.png",
		"notaksuid_12.png",
		ksuid.New().String() + "_abc.png",
		ksuid.New().String() + "_12.jpg",
		".DS_Store",
	} {
		_, ok := ParseArtifactName(name)
		assert.False(t, ok, name)
	}
}

func TestLocalStore_RecordAndList(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, 1500*time.Millisecond, []byte("a")))

	durations, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5}, durations)
}

func TestLocalStore_ListIsChronological(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	writeArtifact(t, dir, base.Add(2*time.Minute), 300*time.Millisecond)
	writeArtifact(t, dir, base, 2*time.Second)
	writeArtifact(t, dir, base.Add(time.Minute), 10*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0o644))

	durations, err := NewLocalStore(dir).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0.01, 0.3}, durations)
}

func TestLocalStore_MissingDirectory(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "missing"))

	_, err := store.List(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	err = store.Record(context.Background(), time.Second, []byte("x"))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLocalStore_Prune(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	old := writeArtifact(t, dir, now.Add(-48*time.Hour), time.Second)
	fresh := writeArtifact(t, dir, now.Add(-time.Minute), time.Second)

	removed, err := NewLocalStore(dir).Prune(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(filepath.Join(dir, old))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, fresh))
	assert.NoError(t, err)
}

func TestJanitor_RunOnce(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeArtifact(t, dir, now.Add(-3*time.Hour), time.Second)
	writeArtifact(t, dir, now.Add(-10*time.Minute), time.Second)

	j, err := NewJanitor(NewLocalStore(dir), time.Hour, "@hourly")
	require.NoError(t, err)
	j.now = func() time.Time { return now }

	removed, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	j.Start()
	j.Stop()
}

func TestNewJanitor_BadSchedule(t *testing.T) {
	_, err := NewJanitor(NoopStore{}, time.Hour, "every tuesday")
	assert.Error(t, err)
}

func TestNoopStore(t *testing.T) {
	var s ArtifactStore = NoopStore{}
	require.NoError(t, s.Record(context.Background(), time.Second, nil))
	d, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, d)
}
