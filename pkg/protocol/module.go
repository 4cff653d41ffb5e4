package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/quipslop/quipcast/pkg/game"
)

type MessageType string

const (
	// Server -> viewer
	StateType       MessageType = "state"
	ViewerCountType MessageType = "viewerCount"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Any message; used to figure out which kind we got.
type GenericMessage struct {
	Type MessageType `json:"type"`
}

// A full replacement of the viewer's game state.
type StateMessage struct {
	Type        MessageType     `json:"type"` // StateType
	Data        *game.GameState `json:"data"`
	TotalRounds int             `json:"totalRounds"`
	ViewerCount int             `json:"viewerCount"`
	// Changes when the server restarts with an incompatible state shape
	ProtocolVersion string `json:"protocolVersion,omitempty"`
}

// Sent far more often than the state itself, so it only carries the count.
type ViewerCountMessage struct {
	Type        MessageType `json:"type"` // ViewerCountType
	ViewerCount int         `json:"viewerCount"`
}

// Decode parses a message from the server. The result is either a
// *StateMessage or a *ViewerCountMessage.
func Decode(data []byte) (interface{}, error) {
	var generic GenericMessage
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch generic.Type {
	case StateType:
		var message StateMessage
		if err := json.Unmarshal(data, &message); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if message.Data == nil {
			return nil, fmt.Errorf("%w: state message without data", ErrMalformed)
		}
		return &message, nil
	case ViewerCountType:
		var message ViewerCountMessage
		if err := json.Unmarshal(data, &message); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &message, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, generic.Type)
}

func EncodeState(state *game.GameState, totalRounds int, viewerCount int, version string) ([]byte, error) {
	return json.Marshal(StateMessage{
		Type:            StateType,
		Data:            state,
		TotalRounds:     totalRounds,
		ViewerCount:     viewerCount,
		ProtocolVersion: version,
	})
}

func EncodeViewerCount(viewerCount int) ([]byte, error) {
	return json.Marshal(ViewerCountMessage{
		Type:        ViewerCountType,
		ViewerCount: viewerCount,
	})
}
