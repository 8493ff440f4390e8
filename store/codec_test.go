package store

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_SmallPayloadStaysIdentity(t *testing.T) {
	codec := NewCodec(true)
	payload := []byte(`{"data":{"ping":"pong"}}`)

	encoded, err := codec.Encode(payload)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"identity"`)

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestCodec_LargePayloadIsCompressed(t *testing.T) {
	codec := NewCodec(true)
	payload := bytes.Repeat([]byte(`{"id":"1","title":"repetitive"},`), 200)

	encoded, err := codec.Encode(payload)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"br"`)
	assert.Less(t, len(encoded), len(payload))

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestCodec_CompressionDisabled(t *testing.T) {
	codec := NewCodec(false)
	payload := bytes.Repeat([]byte("abcdefgh"), 1000)

	encoded, err := codec.Encode(payload)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"identity"`)

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestCodec_GarbageFailsCleanly(t *testing.T) {
	codec := NewCodec(true)

	_, err := codec.Decode([]byte("not an envelope"))
	require.Error(t, err)
}
