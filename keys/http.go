package keys

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-graphql-cache/types"
	"github.com/saiset-co/sai-graphql-cache/utils"
)

// httpQueryBody is the standard GraphQL-over-HTTP POST body.
type httpQueryBody struct {
	QueryID       string                 `json:"queryId,omitempty"`
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	OperationName string                 `json:"operationName,omitempty"`
}

// FromHTTP extracts the query request from a fasthttp request. GET
// requests carry the query in the query string and get their URL
// recorded for the url dependency namespace; POST requests carry a
// JSON body.
func FromHTTP(ctx *fasthttp.RequestCtx) (*types.QueryRequest, error) {
	switch string(ctx.Method()) {
	case fasthttp.MethodGet:
		req := &types.QueryRequest{
			QueryID:       string(ctx.QueryArgs().Peek("queryId")),
			Query:         string(ctx.QueryArgs().Peek("query")),
			OperationName: string(ctx.QueryArgs().Peek("operationName")),
			URL:           string(ctx.RequestURI()),
		}

		if rawVariables := ctx.QueryArgs().Peek("variables"); len(rawVariables) > 0 {
			if err := utils.Unmarshal(rawVariables, &req.Variables); err != nil {
				return nil, types.WrapError(err, "failed to parse variables")
			}
		}

		return req, nil

	case fasthttp.MethodPost:
		var body httpQueryBody
		if err := utils.Unmarshal(ctx.PostBody(), &body); err != nil {
			return nil, types.WrapError(err, "failed to parse request body")
		}

		return &types.QueryRequest{
			QueryID:       body.QueryID,
			Query:         body.Query,
			Variables:     body.Variables,
			OperationName: body.OperationName,
		}, nil

	default:
		return nil, types.Errorf(types.ErrNotSupported, "method: %s", ctx.Method())
	}
}

// WithVary appends a digest of the given header values to a base key,
// so requests that differ only in a varying header (Authorization,
// Accept-Language, ...) occupy separate cache entries. No values, no
// suffix.
func WithVary(baseKey string, varyValues []string) string {
	if len(varyValues) == 0 {
		return baseKey
	}

	digest := xxhash.New()
	for _, value := range varyValues {
		_, _ = digest.WriteString(value)
		_, _ = digest.Write([]byte{0})
	}

	return fmt.Sprintf("%s:%016x", baseKey, digest.Sum64())
}
