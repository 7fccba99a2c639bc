package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidMessage wraps every decode failure.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrUnknownKind is returned together with ErrInvalidMessage when the
	// type tag is present but not recognized.
	ErrUnknownKind = errors.New("unknown message type")
)

// validKinds is the set of allowed executor→client message types.
var validKinds = map[MessageKind]bool{
	KindStatus: true,
	KindOutput: true,
	KindError:  true,
}

// EncodeRequest serializes an execution request for the wire.
func EncodeRequest(req ExecutionRequest) ([]byte, error) {
	if !req.Language.Valid() {
		return nil, fmt.Errorf("unsupported language: %q", req.Language)
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return data, nil
}

// DecodeMessage parses and validates a raw frame from the executor.
func DecodeMessage(raw []byte) (*StreamMessage, error) {
	var msg StreamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrInvalidMessage, err)
	}

	if msg.Kind == "" {
		return nil, fmt.Errorf("%w: missing 'type' field", ErrInvalidMessage)
	}

	if !validKinds[msg.Kind] {
		return nil, fmt.Errorf("%w: %w: %s", ErrInvalidMessage, ErrUnknownKind, msg.Kind)
	}

	return &msg, nil
}

// DecodeRequest parses a request on the executor side. A missing
// language falls back to DefaultLanguage; an unsupported one is returned
// as-is so the executor can report it to the client.
func DecodeRequest(raw []byte) (*ExecutionRequest, error) {
	var req ExecutionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrInvalidMessage, err)
	}
	if req.Language == "" {
		req.Language = DefaultLanguage
	}
	return &req, nil
}

// EncodeMessage serializes an executor→client frame.
func EncodeMessage(kind MessageKind, data string) ([]byte, error) {
	if !validKinds[kind] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	out, err := json.Marshal(StreamMessage{Kind: kind, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return out, nil
}
