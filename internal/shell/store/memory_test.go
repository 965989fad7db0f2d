package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CRUD(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	tmpl := testTemplate("io.maestro", "deploy")
	require.NoError(t, s.CreateTemplate(ctx, tmpl))

	err := s.CreateTemplate(ctx, testTemplate("io.maestro", "deploy"))
	assert.True(t, errors.Is(err, ErrDuplicateID))

	got, err := s.GetTemplate(ctx, "io.maestro", "deploy")
	require.NoError(t, err)
	assert.Equal(t, "deploy", got.ID)
	assert.False(t, got.CreatedAt.IsZero())

	updated := testTemplate("io.maestro", "deploy")
	updated.Description = "changed"
	require.NoError(t, s.UpdateTemplate(ctx, updated))

	got, err = s.GetTemplate(ctx, "io.maestro", "deploy")
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Description)

	require.NoError(t, s.DeleteTemplate(ctx, "io.maestro", "deploy"))
	_, err = s.GetTemplate(ctx, "io.maestro", "deploy")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(s.DeleteTemplate(ctx, "io.maestro", "deploy"), ErrNotFound))
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateTemplate(ctx, testTemplate("io.maestro", "deploy")))

	got, err := s.GetTemplate(ctx, "io.maestro", "deploy")
	require.NoError(t, err)
	got.Description = "mutated by caller"

	again, err := s.GetTemplate(ctx, "io.maestro", "deploy")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated by caller", again.Description)
}

func TestMemoryStore_UpdatePreservesCreatedAt(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateTemplate(ctx, testTemplate("io.maestro", "deploy")))
	created, err := s.GetTemplate(ctx, "io.maestro", "deploy")
	require.NoError(t, err)

	require.NoError(t, s.UpdateTemplate(ctx, testTemplate("io.maestro", "deploy")))
	got, err := s.GetTemplate(ctx, "io.maestro", "deploy")
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, got.CreatedAt)
}

func TestMemoryStore_ListByNamespaceOrdered(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		require.NoError(t, s.CreateTemplate(ctx, testTemplate("io.maestro", id)))
	}
	require.NoError(t, s.CreateTemplate(ctx, testTemplate("io.other", "delta")))

	templates, err := s.ListByNamespace(ctx, "io.maestro")
	require.NoError(t, err)
	require.Len(t, templates, 3)
	assert.Equal(t, "alpha", templates[0].ID)
	assert.Equal(t, "bravo", templates[1].ID)
	assert.Equal(t, "charlie", templates[2].ID)
}

func TestMemoryStore_ListDistinctNamespaces(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateTemplate(ctx, testTemplate("io.zeta", "one")))
	require.NoError(t, s.CreateTemplate(ctx, testTemplate("io.alpha", "one")))

	namespaces, err := s.ListDistinctNamespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"io.alpha", "io.zeta"}, namespaces)

	// Deleting the last template in a namespace drops the namespace.
	require.NoError(t, s.DeleteTemplate(ctx, "io.zeta", "one"))
	namespaces, err = s.ListDistinctNamespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"io.alpha"}, namespaces)
}

func TestMemoryStore_Search(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateTemplate(ctx, testTemplate("io.maestro", "deploy-api")))
	require.NoError(t, s.CreateTemplate(ctx, testTemplate("io.maestro.prod", "deploy-web")))
	require.NoError(t, s.CreateTemplate(ctx, testTemplate("io.maestronot", "cleanup")))

	results, total, err := s.SearchTemplates(ctx, SearchOptions{Namespace: "io.maestro"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, results, 2)
	assert.Equal(t, "io.maestro", results[0].Namespace)
	assert.Equal(t, "io.maestro.prod", results[1].Namespace)

	results, total, err = s.SearchTemplates(ctx, SearchOptions{Query: "cleanup"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, results, 1)
	assert.Equal(t, "cleanup", results[0].ID)
}
