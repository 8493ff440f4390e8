package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-graphql-cache/types"
)

func TestBuild_ExplicitIDWinsOverQueryText(t *testing.T) {
	b := NewBuilder()

	key, err := b.Build(&types.QueryRequest{
		QueryID: "saved-query-42",
		Query:   "{ posts { id } }",
	})
	require.NoError(t, err)
	assert.Equal(t, "saved-query-42", key)
}

func TestBuild_HashIsDeterministic(t *testing.T) {
	b := NewBuilder()

	first, err := b.Build(&types.QueryRequest{Query: "{ posts { id title } }"})
	require.NoError(t, err)

	second, err := b.Build(&types.QueryRequest{Query: "{ posts { id title } }"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestBuild_WhitespaceChangesTheKey(t *testing.T) {
	b := NewBuilder()

	first, err := b.Build(&types.QueryRequest{Query: "{ posts { id } }"})
	require.NoError(t, err)

	second, err := b.Build(&types.QueryRequest{Query: "{  posts { id } }"})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestBuild_VariablesDoNotAffectTheKey(t *testing.T) {
	b := NewBuilder()

	first, err := b.Build(&types.QueryRequest{
		Query:     "query One($id: ID!) { post(id: $id) { title } }",
		Variables: map[string]interface{}{"id": "1"},
	})
	require.NoError(t, err)

	second, err := b.Build(&types.QueryRequest{
		Query:     "query One($id: ID!) { post(id: $id) { title } }",
		Variables: map[string]interface{}{"id": "2"},
	})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuild_EmptyRequestFails(t *testing.T) {
	b := NewBuilder()

	_, err := b.Build(&types.QueryRequest{})
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrQueryTextEmpty))
}
