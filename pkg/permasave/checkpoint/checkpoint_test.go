package checkpoint_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permasave/permasave/pkg/permasave/checkpoint"
)

func TestCheckpoint_MarshalShape(t *testing.T) {
	cp := &checkpoint.Checkpoint{
		Owner:         testOwner,
		Application:   testApp,
		CreatedAt:     1700000000123,
		Payload:       map[string]any{"level": float64(7)},
		SchemaVersion: checkpoint.SchemaVersion,
		ContentID:     "should-not-appear",
	}

	data, err := cp.Marshal()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, testOwner, raw["owner"])
	assert.Equal(t, testApp, raw["application"])
	assert.Equal(t, float64(1700000000123), raw["createdAt"])
	assert.Equal(t, map[string]any{"level": float64(7)}, raw["payload"])
	assert.Equal(t, checkpoint.SchemaVersion, raw["schemaVersion"])

	// The store identifier is metadata, never part of the body.
	assert.NotContains(t, string(data), "should-not-appear")
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	cp := &checkpoint.Checkpoint{
		Owner:         testOwner,
		Application:   testApp,
		CreatedAt:     42,
		Payload:       map[string]any{"a": "b", "nested": map[string]any{"c": float64(1)}},
		SchemaVersion: checkpoint.SchemaVersion,
	}

	data, err := cp.Marshal()
	require.NoError(t, err)

	decoded, err := checkpoint.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, cp.Owner, decoded.Owner)
	assert.Equal(t, cp.Application, decoded.Application)
	assert.Equal(t, cp.CreatedAt, decoded.CreatedAt)
	assert.Equal(t, cp.Payload, decoded.Payload)
}

func TestUnmarshal_Invalid(t *testing.T) {
	_, err := checkpoint.Unmarshal([]byte("not json"))
	assert.Error(t, err)
}

func TestValidOwner(t *testing.T) {
	valid := []string{
		"0x1111111111111111111111111111111111111111",
		"0xAbCdEf0123456789abcdef0123456789ABCDEF01",
	}
	for _, owner := range valid {
		assert.True(t, checkpoint.ValidOwner(owner), owner)
	}

	invalid := []string{
		"",
		"0x",
		"0x111111111111111111111111111111111111111",   // 39 chars
		"0x11111111111111111111111111111111111111111", // 41 chars
		"1111111111111111111111111111111111111111",    // missing prefix
		"0xZZ11111111111111111111111111111111111111",  // non-hex
		"0X1111111111111111111111111111111111111111",  // wrong prefix case
	}
	for _, owner := range invalid {
		assert.False(t, checkpoint.ValidOwner(owner), owner)
	}
}
