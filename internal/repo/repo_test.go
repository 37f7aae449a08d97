package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hazardwatch/edge-next/internal/infra"
)

func newTestStore(t *testing.T) *infra.Store {
	t.Helper()

	store := infra.Open(filepath.Join(t.TempDir(), "test.db"))
	require.True(t, store.Available())
	require.NoError(t, NewMeta(store).Migrate(context.Background()))

	return store
}
