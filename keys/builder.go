// Package keys derives cache keys for query results.
//
// A request that carries an explicit query id is keyed by that id
// verbatim, so pre-registered (persisted) queries keep stable keys
// across clients. Everything else is keyed by the SHA-256 digest of
// the raw query text. The digest is computed over the text exactly
// as received: two requests whose queries differ in whitespace only
// produce different keys.
package keys

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/saiset-co/sai-graphql-cache/types"
)

type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Build returns the cache key for a request. Variables and operation
// name are deliberately not part of the key.
func (b *Builder) Build(req *types.QueryRequest) (string, error) {
	if req.QueryID != "" {
		return req.QueryID, nil
	}

	if req.Query == "" {
		return "", types.ErrQueryTextEmpty
	}

	return HashQuery(req.Query), nil
}

// HashQuery returns the lowercase hex SHA-256 digest of queryText.
func HashQuery(queryText string) string {
	sum := sha256.Sum256([]byte(queryText))
	return hex.EncodeToString(sum[:])
}
