package store

import (
	"bytes"
	"io"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/saiset-co/sai-graphql-cache/types"
	"github.com/saiset-co/sai-graphql-cache/utils"
)

const (
	encodingIdentity = "identity"
	encodingBrotli   = "br"

	// Blobs below this size are stored as-is, compression overhead
	// outweighs the savings.
	compressionThreshold = 1024
)

type resultEnvelope struct {
	Encoding string    `json:"encoding"`
	Payload  []byte    `json:"payload"`
	StoredAt time.Time `json:"stored_at"`
}

// Codec wraps result blobs in a small envelope so backends store one
// opaque value. Large payloads are brotli-compressed when enabled.
type Codec struct {
	compression bool
}

func NewCodec(compression bool) *Codec {
	return &Codec{compression: compression}
}

func (c *Codec) Encode(result []byte) ([]byte, error) {
	envelope := &resultEnvelope{
		Encoding: encodingIdentity,
		Payload:  result,
		StoredAt: time.Now(),
	}

	if c.compression && len(result) >= compressionThreshold {
		var buf bytes.Buffer
		w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
		if _, err := w.Write(result); err != nil {
			return nil, types.WrapError(err, "failed to compress result")
		}
		if err := w.Close(); err != nil {
			return nil, types.WrapError(err, "failed to compress result")
		}

		envelope.Encoding = encodingBrotli
		envelope.Payload = buf.Bytes()
	}

	return utils.Marshal(envelope)
}

func (c *Codec) Decode(data []byte) ([]byte, error) {
	var envelope resultEnvelope
	if err := utils.Unmarshal(data, &envelope); err != nil {
		return nil, types.WrapError(err, "failed to decode result envelope")
	}

	switch envelope.Encoding {
	case encodingBrotli:
		r := brotli.NewReader(bytes.NewReader(envelope.Payload))
		result, err := io.ReadAll(r)
		if err != nil {
			return nil, types.WrapError(err, "failed to decompress result")
		}
		return result, nil
	default:
		return envelope.Payload, nil
	}
}
