package task

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusIsTerminalAndIsPending(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		pending  bool
		terminal bool
	}{
		{"pending", Pending(), true, false},
		{"in_progress", NewInProgress(0, 3, 20), false, false},
		{"finished", Finished(), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.pending, tt.status.IsPending())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestParamsRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"image_generation", NewImageGenerationParams("cute cat", 20, 3)},
		{"chat_message_generation", NewChatMessageGenerationParams()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.params)
			require.NoError(t, err)

			var decoded Params
			require.NoError(t, json.Unmarshal(data, &decoded))

			assert.Equal(t, tt.params.Kind, decoded.Kind)
			assert.Equal(t, tt.params, decoded)
		})
	}
}

func TestStatusRoundTrip(t *testing.T) {
	tests := []Status{
		Pending(),
		NewInProgress(1, 5, 20),
		Finished(),
	}

	for _, status := range tests {
		data, err := json.Marshal(status)
		require.NoError(t, err)

		var decoded Status
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, status, decoded)
	}
}

func TestUnmarshalUnknownKindIsSoftError(t *testing.T) {
	var p Params
	err := json.Unmarshal([]byte(`{"kind":"video_generation"}`), &p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownKind))

	var s Status
	err = json.Unmarshal([]byte(`{"kind":"cancelled"}`), &s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownKind))
}
