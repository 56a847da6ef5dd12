package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFileStoreEmptyFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))

	got, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s := NewFileStore(path)

	want := RecentSelections{
		{LocationID: "tokyo", Timestamp: time.Date(2025, 3, 10, 8, 15, 30, 123456789, time.UTC)},
		{LocationID: "paris", Timestamp: time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].LocationID, got[i].LocationID)
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
	}

	_, err = os.Stat(path + ".tmp")
	assert.True(t, errors.Is(err, os.ErrNotExist), "temporary file must be gone")
}

func TestFileStoreLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(path)
	records := RecentSelections{{LocationID: "tokyo", Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}}
	require.NoError(t, s.Save(context.Background(), records))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"recently_posted":[{"location_id":"tokyo","timestamp":"2025-01-01T00:00:00Z"}]}`, string(b))
}

func TestFileStoreSaveEmptyWritesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, NewFileStore(path).Save(context.Background(), nil))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"recently_posted":[]}`, string(b))
}

func TestFileStoreCorruptState(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"truncated", `{"recently_posted":[{"location_id":"tok`},
		{"not json", `hello`},
		{"wrong shape", `{"recently_posted":"tokyo"}`},
		{"missing id", `{"recently_posted":[{"timestamp":"2025-01-01T00:00:00Z"}]}`},
		{"bad timestamp", `{"recently_posted":[{"location_id":"tokyo","timestamp":"yesterday"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0o644))

			_, err := NewFileStore(path).Load(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrStateCorruption)
		})
	}
}

func TestFileStoreInterruptedSaveKeepsOldState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(path)

	old := RecentSelections{{LocationID: "tokyo", Timestamp: testNow}}
	require.NoError(t, s.Save(ctx, old))

	// The process dies after writing the temporary file but before the rename.
	s.rename = func(string, string) error { return errors.New("killed") }
	err := s.Save(ctx, Add(old, "paris", testNow.Add(time.Hour)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)

	got, err := NewFileStore(path).Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tokyo", got[0].LocationID)
}

func TestFileStoreIgnoresLeftoverPartialTemp(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(path)

	require.NoError(t, s.Save(ctx, RecentSelections{{LocationID: "tokyo", Timestamp: testNow}}))
	require.NoError(t, os.WriteFile(path+".tmp", []byte(`{"recently_posted":[{"loc`), 0o644))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tokyo", got[0].LocationID)

	// The next save replaces the leftover and completes normally.
	next := Add(got, "paris", testNow)
	require.NoError(t, s.Save(ctx, next))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
