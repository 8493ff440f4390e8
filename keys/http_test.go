package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func TestFromHTTP_Get(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod("GET")
	ctx.Request.SetRequestURI(`/graphql?query=%7B+posts+%7B+id+%7D+%7D&operationName=Posts&variables=%7B%22limit%22%3A10%7D`)

	req, err := FromHTTP(&ctx)
	require.NoError(t, err)

	assert.Equal(t, "{ posts { id } }", req.Query)
	assert.Equal(t, "Posts", req.OperationName)
	assert.Equal(t, float64(10), req.Variables["limit"])
	assert.NotEmpty(t, req.URL)
}

func TestFromHTTP_GetBadVariables(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod("GET")
	ctx.Request.SetRequestURI("/graphql?query=%7B+posts+%7D&variables=not-json")

	_, err := FromHTTP(&ctx)
	assert.Error(t, err)
}

func TestFromHTTP_Post(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod("POST")
	ctx.Request.SetRequestURI("/graphql")
	ctx.Request.SetBody([]byte(`{"queryId":"saved-1","query":"{ posts { id } }","operationName":"Posts"}`))

	req, err := FromHTTP(&ctx)
	require.NoError(t, err)

	assert.Equal(t, "saved-1", req.QueryID)
	assert.Equal(t, "{ posts { id } }", req.Query)
	// POSTs are not idempotent, they never feed the url namespace
	assert.Empty(t, req.URL)
}

func TestFromHTTP_UnsupportedMethod(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod("PUT")
	ctx.Request.SetRequestURI("/graphql")

	_, err := FromHTTP(&ctx)
	assert.Error(t, err)
}

func TestWithVary(t *testing.T) {
	base := "abc123"

	assert.Equal(t, base, WithVary(base, nil))

	varied := WithVary(base, []string{"user-token", "en-US"})
	assert.NotEqual(t, base, varied)
	assert.Len(t, varied, len(base)+1+16)

	// stable for equal values, distinct for different ones
	assert.Equal(t, varied, WithVary(base, []string{"user-token", "en-US"}))
	assert.NotEqual(t, varied, WithVary(base, []string{"other-token", "en-US"}))

	// the separator keeps ["ab",""] and ["a","b"] apart
	assert.NotEqual(t, WithVary(base, []string{"ab", ""}), WithVary(base, []string{"a", "b"}))
}
