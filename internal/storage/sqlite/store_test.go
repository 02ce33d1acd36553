package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/fieldcall/internal/storage"
	"github.com/julianstephens/fieldcall/internal/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "nested", "fieldcall.db"))
	require.NoError(t, s.Init())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProvider(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Provider { return newTestStore(t) })
}

func TestLoadRequiresInit(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "fieldcall.db"))
	err := s.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fieldcall init")
}

func TestInitIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldcall.db")
	s := NewStore(path)
	require.NoError(t, s.Init())
	require.NoError(t, s.Close())

	reopened := NewStore(path)
	require.NoError(t, reopened.Load())
	defer reopened.Close()

	applied, err := reopened.Migrate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, applied)
	assert.Equal(t, path, reopened.GetConfigPath())
}
