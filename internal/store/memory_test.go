package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/memory/apps/go-server/internal/game"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	eng := game.New(game.Config{})
	require.NoError(t, st.Save(ctx, eng))

	got, err := st.Get(ctx, eng.ID())
	require.NoError(t, err)
	assert.Same(t, eng, got)

	_, err = st.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.Delete(ctx, eng.ID()))
	_, err = st.Get(ctx, eng.ID())
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting an unknown id is not an error
	assert.NoError(t, st.Delete(ctx, "missing"))
}
