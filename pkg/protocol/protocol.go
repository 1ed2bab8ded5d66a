// Package protocol defines the JSON messages exchanged between sync clients and the sync server. Each message is an object
// with exactly one key naming the variant, e.g. {"Hello":{...}}. The tags and field names are shared with independently
// deployed clients, so any change to them must bump Version.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const Version = 1

var ErrMalformed = errors.New("malformed message")

// ClientMessage is sent from a client to the server: Hello or SubmitChange.
type ClientMessage interface {
	clientMessage()
}

// ServerMessage is sent from the server to a client: ChangeOccurred.
type ServerMessage interface {
	serverMessage()
}

// Hello must be the first frame on every connection. RoomKey is called the discovery key on the wire.
type Hello struct {
	ClientID     string `json:"client_id"`
	RoomKey      string `json:"discovery_key"`
	LastSequence int64  `json:"last_sequence"`
}

type SubmitChange struct {
	RoomKey string  `json:"discovery_key"`
	Payload Payload `json:"payload"`
}

type ChangeOccurred struct {
	SequenceID     int64   `json:"sequence_id"`
	RoomKey        string  `json:"discovery_key"`
	SourceClientID string  `json:"source_client_id"`
	Payload        Payload `json:"payload"`
}

func (Hello) clientMessage()          {}
func (SubmitChange) clientMessage()   {}
func (ChangeOccurred) serverMessage() {}

const (
	tagHello          = "Hello"
	tagSubmitChange   = "SubmitChange"
	tagChangeOccurred = "ChangeOccurred"
)

func EncodeClient(m ClientMessage) ([]byte, error) {
	switch v := m.(type) {
	case Hello:
		return encode(tagHello, v)
	case *Hello:
		return encode(tagHello, v)
	case SubmitChange:
		return encode(tagSubmitChange, v)
	case *SubmitChange:
		return encode(tagSubmitChange, v)
	}
	return nil, fmt.Errorf("unsupported client message %T", m)
}

func EncodeServer(m ServerMessage) ([]byte, error) {
	switch v := m.(type) {
	case ChangeOccurred:
		return encode(tagChangeOccurred, v)
	case *ChangeOccurred:
		return encode(tagChangeOccurred, v)
	}
	return nil, fmt.Errorf("unsupported server message %T", m)
}

func DecodeClient(raw []byte) (ClientMessage, error) {
	tag, body, err := split(raw)
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagHello:
		var m Hello
		if err := decode(tag, body, &m, "client_id", "discovery_key", "last_sequence"); err != nil {
			return nil, err
		}
		return m, nil
	case tagSubmitChange:
		var m SubmitChange
		if err := decode(tag, body, &m, "discovery_key", "payload"); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: unknown client message %q", ErrMalformed, tag)
}

func DecodeServer(raw []byte) (ServerMessage, error) {
	tag, body, err := split(raw)
	if err != nil {
		return nil, err
	}
	if tag == tagChangeOccurred {
		var m ChangeOccurred
		if err := decode(tag, body, &m, "sequence_id", "discovery_key", "source_client_id", "payload"); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: unknown server message %q", ErrMalformed, tag)
}

func encode(tag string, body any) ([]byte, error) {
	out, err := json.Marshal(map[string]any{tag: body})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", tag, err)
	}
	return out, nil
}

func split(raw []byte) (string, json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(envelope) != 1 {
		tags := make([]string, 0, len(envelope))
		for k := range envelope {
			tags = append(tags, k)
		}
		sort.Strings(tags)
		return "", nil, fmt.Errorf("%w: expected exactly one tag, got [%s]", ErrMalformed, strings.Join(tags, ","))
	}
	var tag string
	var body json.RawMessage
	for tag, body = range envelope {
	}
	return tag, body, nil
}

// decode rejects bodies that are missing any of the required fields. Unknown fields are ignored.
func decode(tag string, body json.RawMessage, into any, required ...string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, tag, err)
	}
	for _, name := range required {
		if _, ok := fields[name]; !ok {
			return fmt.Errorf("%w: %s: missing field %q", ErrMalformed, tag, name)
		}
	}
	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, tag, err)
	}
	return nil
}
