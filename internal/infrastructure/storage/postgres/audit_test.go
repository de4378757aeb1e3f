package postgres

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditPackSmallPayloadStaysPlain(t *testing.T) {
	store, err := NewAuditStore(nil)
	require.NoError(t, err)

	raw := []byte(`{"status":"CREATED"}`)
	payload, compressed, algo := store.pack(raw)

	assert.Equal(t, CompressionNone, algo)
	assert.Equal(t, json.RawMessage(raw), payload)
	assert.Nil(t, compressed)
}

func TestAuditPackUnpackRoundTripsLargePayload(t *testing.T) {
	store, err := NewAuditStore(nil)
	require.NoError(t, err)

	// A delivery snapshot with many lines easily exceeds the threshold.
	raw := []byte(`{"items":"` + string(bytes.Repeat([]byte("a"), 20*1024)) + `"}`)
	payload, compressed, algo := store.pack(raw)

	require.Equal(t, CompressionZstd, algo)
	assert.Nil(t, payload)
	require.NotEmpty(t, compressed)
	assert.Less(t, len(compressed), len(raw))

	restored, err := store.unpack(&auditRow{
		CompressionAlgo:   algo,
		PayloadCompressed: compressed,
	})
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(raw), restored)
}
