package bolt

import (
	"path/filepath"
	"testing"

	"fintrack/internal/storage"
	"fintrack/internal/storage/storagetest"

	"github.com/stretchr/testify/require"
)

func TestBoltStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := Open(filepath.Join(t.TempDir(), "fintrack.bolt"))
		require.NoError(t, err)
		return s
	})
}
