package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Path: filepath.Join(t.TempDir(), "state.json")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(ctx, Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open(ctx, Options{Backend: BackendFile})
	assert.Error(t, err)

	_, err = Open(ctx, Options{Backend: "sqlite"})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = Open(ctx, Options{Backend: BackendRedis, RedisURL: "not-a-url"})
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	want := RecentSelections{{LocationID: "lima", Timestamp: time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)}}
	require.NoError(t, s.Save(ctx, want))

	got, err = s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "lima", got[0].LocationID)
	assert.True(t, want[0].Timestamp.Equal(got[0].Timestamp))

	s.SetRaw([]byte("{broken"))
	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, ErrStateCorruption)

	s.FailSaves(errors.New("disk full"))
	err = s.Save(ctx, want)
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestDecodeNullList(t *testing.T) {
	got, err := Decode([]byte(`{"recently_posted":null}`))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = Decode([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, got)
}
