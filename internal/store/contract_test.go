package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract checks the behaviour every backend must share.
func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("LookupMissing", func(t *testing.T) {
		_, ok, err := s.Lookup(ctx, ".nothing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("InsertLookup", func(t *testing.T) {
		require.NoError(t, s.Insert(ctx, ".hi", "Hello there!"))

		got, ok, err := s.Lookup(ctx, ".hi")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Hello there!", got)
	})

	t.Run("InsertDuplicateKeepsOriginal", func(t *testing.T) {
		err := s.Insert(ctx, ".hi", "Overwritten")
		assert.ErrorIs(t, err, ErrExists)

		got, _, err := s.Lookup(ctx, ".hi")
		require.NoError(t, err)
		assert.Equal(t, "Hello there!", got)
	})

	t.Run("MultilineAndUnicode", func(t *testing.T) {
		body := "Regards,\nJosé ☃"
		require.NoError(t, s.Insert(ctx, ".sig", body))
		got, ok, err := s.Lookup(ctx, ".sig")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, body, got)
	})

	t.Run("ListSorted", func(t *testing.T) {
		require.NoError(t, s.Insert(ctx, ".addr", "1 Main St"))

		phrases, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, phrases, 3)
		assert.Equal(t, ".addr", phrases[0].Trigger)
		assert.Equal(t, ".hi", phrases[1].Trigger)
		assert.Equal(t, ".sig", phrases[2].Trigger)
		assert.Equal(t, "Hello there!", phrases[1].Expansion)
		assert.False(t, phrases[0].CreatedAt.IsZero())
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		before, err := s.List(ctx)
		require.NoError(t, err)

		require.NoError(t, s.Put(ctx, ".hi", "Hi again"))
		got, ok, err := s.Lookup(ctx, ".hi")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Hi again", got)

		after, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, after, len(before))
		assert.Equal(t, before[1].CreatedAt.UnixNano(), after[1].CreatedAt.UnixNano())

		require.NoError(t, s.Put(ctx, ".hi", "Hello there!"))
	})

	t.Run("PutAddsMissing", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, ".new", "fresh"))
		got, ok, err := s.Lookup(ctx, ".new")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "fresh", got)
		require.NoError(t, s.Delete(ctx, ".new"))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, ".addr"))
		_, ok, err := s.Lookup(ctx, ".addr")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.ErrorIs(t, s.Delete(ctx, ".addr"), ErrNotFound)
	})

	t.Run("ReinsertAfterDelete", func(t *testing.T) {
		require.NoError(t, s.Insert(ctx, ".addr", "2 Side St"))
		got, _, err := s.Lookup(ctx, ".addr")
		require.NoError(t, err)
		assert.Equal(t, "2 Side St", got)
	})
}
