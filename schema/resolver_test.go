package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-graphql-cache/types"
)

const testSchema = `
schema {
  query: RootQuery
  mutation: RootMutation
}

interface Node {
  id: ID!
}

interface ContentNode {
  id: ID!
  title: String
  author: User
}

union SearchResult = Post | Page | User

type RootQuery {
  post(id: ID!): Post
  posts(first: Int): [Post!]!
  content(id: ID!): ContentNode
  search(term: String!): [SearchResult!]
  viewer: User
  node(id: ID!): Node
}

type RootMutation {
  createPost(title: String!): Post
}

type Post implements Node & ContentNode {
  id: ID!
  title: String
  author: User
  comments: [Comment!]
  status: PostStatus
}

type Page implements Node & ContentNode {
  id: ID!
  title: String
  author: User
}

type User implements Node {
  id: ID!
  name: String
}

type Comment implements Node {
  id: ID!
  body: String
  author: User
}

enum PostStatus {
  DRAFT
  PUBLISHED
}
`

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()

	registry, err := NewRegistry(testSchema)
	require.NoError(t, err)

	resolver, err := NewResolver(registry)
	require.NoError(t, err)

	return resolver
}

func TestResolveTypes_SimpleQuery(t *testing.T) {
	resolver := newTestResolver(t)

	found, err := resolver.ResolveTypes(`{ posts { id title } }`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Post", "RootQuery"}, found)
}

func TestResolveTypes_NestedSelections(t *testing.T) {
	resolver := newTestResolver(t)

	found, err := resolver.ResolveTypes(`
		query {
			posts {
				title
				author { name }
				comments { body author { name } }
			}
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Comment", "Post", "RootQuery", "User"}, found)
}

func TestResolveTypes_InterfaceExpandsToMembers(t *testing.T) {
	resolver := newTestResolver(t)

	found, err := resolver.ResolveTypes(`{ content(id: "1") { title } }`)
	require.NoError(t, err)

	assert.Contains(t, found, "Post")
	assert.Contains(t, found, "Page")
	assert.NotContains(t, found, "ContentNode")
}

func TestResolveTypes_UnionExpandsToMembers(t *testing.T) {
	resolver := newTestResolver(t)

	found, err := resolver.ResolveTypes(`{ search(term: "go") { __typename } }`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Page", "Post", "RootQuery", "User"}, found)
}

func TestResolveTypes_InlineFragmentOnUnionMember(t *testing.T) {
	resolver := newTestResolver(t)

	found, err := resolver.ResolveTypes(`
		{
			search(term: "go") {
				... on Post { title comments { body } }
			}
		}
	`)
	require.NoError(t, err)
	assert.Contains(t, found, "Comment")
	assert.Contains(t, found, "Post")
}

func TestResolveTypes_NamedFragment(t *testing.T) {
	resolver := newTestResolver(t)

	found, err := resolver.ResolveTypes(`
		query GetPosts {
			posts { ...PostFields }
		}

		fragment PostFields on Post {
			title
			author { name }
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Post", "RootQuery", "User"}, found)
}

func TestResolveTypes_UnknownFragmentFails(t *testing.T) {
	resolver := newTestResolver(t)

	_, err := resolver.ResolveTypes(`{ posts { ...Missing } }`)
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrFragmentUnknown))
}

func TestResolveTypes_FragmentCycleTerminates(t *testing.T) {
	resolver := newTestResolver(t)

	found, err := resolver.ResolveTypes(`
		{ posts { ...A } }
		fragment A on Post { title ...B }
		fragment B on Post { status ...A }
	`)
	require.NoError(t, err)
	assert.Contains(t, found, "Post")
}

func TestResolveTypes_MutationUsesMutationRoot(t *testing.T) {
	resolver := newTestResolver(t)

	found, err := resolver.ResolveTypes(`mutation { createPost(title: "hi") { id } }`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Post", "RootMutation"}, found)
}

func TestResolveTypes_ScalarsAndEnumsAreNotRecorded(t *testing.T) {
	resolver := newTestResolver(t)

	found, err := resolver.ResolveTypes(`{ posts { title status } }`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Post", "RootQuery"}, found)
}

func TestResolveTypes_SyntaxErrorIsReported(t *testing.T) {
	resolver := newTestResolver(t)

	_, err := resolver.ResolveTypes(`{ posts { id `)
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrQuerySyntax))
}

func TestResolveTypes_EmptyQueryFails(t *testing.T) {
	resolver := newTestResolver(t)

	_, err := resolver.ResolveTypes("   ")
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrQueryTextEmpty))
}

func TestResolveTypes_VariablesAndDirectives(t *testing.T) {
	resolver := newTestResolver(t)

	found, err := resolver.ResolveTypes(`
		query One($id: ID!, $withAuthor: Boolean! = true) {
			post(id: $id) {
				title
				author @include(if: $withAuthor) { name }
			}
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Post", "RootQuery", "User"}, found)
}

func TestNewRegistry_EmptySchemaFails(t *testing.T) {
	_, err := NewRegistry("  \n ")
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrSchemaNotLoaded))
}

func TestRegistry_DefaultRootNames(t *testing.T) {
	registry, err := NewRegistry(`
		type Query { ping: String }
		type Mutation { touch: String }
	`)
	require.NoError(t, err)

	root, ok := registry.RootType("query")
	require.True(t, ok)
	assert.Equal(t, "Query", root)

	root, ok = registry.RootType("mutation")
	require.True(t, ok)
	assert.Equal(t, "Mutation", root)

	_, ok = registry.RootType("subscription")
	assert.False(t, ok)
}

func TestRegistry_ConcreteTypes(t *testing.T) {
	registry, err := NewRegistry(testSchema)
	require.NoError(t, err)

	assert.Equal(t, []string{"Page", "Post", "User"}, registry.ConcreteTypes("SearchResult"))
	assert.Equal(t, []string{"Page", "Post"}, registry.ConcreteTypes("ContentNode"))
	assert.Equal(t, []string{"Post"}, registry.ConcreteTypes("Post"))
	assert.Nil(t, registry.ConcreteTypes("PostStatus"))
}
