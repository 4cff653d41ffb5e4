package protocol

import (
	"errors"
	"testing"

	"github.com/quipslop/quipcast/pkg/game"

	"github.com/stretchr/testify/require"
)

func TestDecodeState(t *testing.T) {
	message, err := Decode([]byte(`{
  "type": "state",
  "data": {"lastCompleted": null, "active": null, "scores": {"Alpha": 2}, "viewerScores": {}, "done": false, "isPaused": true, "generation": 3},
  "totalRounds": 12,
  "viewerCount": 40,
  "protocolVersion": "7"
}`))
	require.NoError(t, err)

	state, ok := message.(*StateMessage)
	require.True(t, ok)
	require.Equal(t, 12, state.TotalRounds)
	require.Equal(t, 40, state.ViewerCount)
	require.Equal(t, "7", state.ProtocolVersion)
	require.Equal(t, 3, state.Data.Generation)
	require.True(t, state.Data.IsPaused)
	require.Equal(t, 2, state.Data.Scores["Alpha"])
}

func TestDecodeViewerCount(t *testing.T) {
	message, err := Decode([]byte(`{"type":"viewerCount","viewerCount":9}`))
	require.NoError(t, err)

	count, ok := message.(*ViewerCountMessage)
	require.True(t, ok)
	require.Equal(t, 9, count.ViewerCount)
}

func TestDecodeMalformed(t *testing.T) {
	for _, input := range []string{
		``,
		`{`,
		`[]`,
		`{"type":"state"}`,
		`{"type":"state","data":"nope"}`,
		`{"type":"viewerCount","viewerCount":"many"}`,
	} {
		_, err := Decode([]byte(input))
		require.True(t, errors.Is(err, ErrMalformed), "input %q: %v", input, err)
	}

	_, err := Decode([]byte(`{"type":"chat"}`))
	require.True(t, errors.Is(err, ErrUnknownType))
}

func TestEncodeRoundTrip(t *testing.T) {
	state := &game.GameState{
		Scores:     map[string]int{"Beta": 1},
		Generation: 2,
	}

	data, err := EncodeState(state, 5, 3, "v1")
	require.NoError(t, err)

	message, err := Decode(data)
	require.NoError(t, err)
	decoded := message.(*StateMessage)
	require.Equal(t, "v1", decoded.ProtocolVersion)
	require.Equal(t, 2, decoded.Data.Generation)

	data, err = EncodeViewerCount(11)
	require.NoError(t, err)
	message, err = Decode(data)
	require.NoError(t, err)
	require.Equal(t, 11, message.(*ViewerCountMessage).ViewerCount)
}
