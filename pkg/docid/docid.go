// Package docid implements the shareable document identifiers used both as the automerge document handle and as the
// discovery key for sync. Identifiers are 128 random bits rendered as base58check so that transcription errors are caught.
package docid

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

const (
	idLength       = 16
	checksumLength = 4

	// URLScheme prefixes a DocumentId in its shareable URL form.
	URLScheme = "tasklens:"
)

var ErrInvalidIdentifier = errors.New("invalid identifier")

// DocumentId is immutable once created.
type DocumentId [idLength]byte

func New() DocumentId {
	return DocumentId(uuid.New())
}

func FromBytes(raw []byte) (DocumentId, error) {
	var id DocumentId
	if len(raw) != idLength {
		return id, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidIdentifier, idLength, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func Parse(s string) (DocumentId, error) {
	var id DocumentId
	raw, err := base58.Decode(s)
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidIdentifier, err)
	}
	if len(raw) != idLength+checksumLength {
		return id, fmt.Errorf("%w: decoded length %d", ErrInvalidIdentifier, len(raw))
	}
	payload, sum := raw[:idLength], raw[idLength:]
	if !bytes.Equal(checksum(payload), sum) {
		return id, fmt.Errorf("%w: checksum mismatch", ErrInvalidIdentifier)
	}
	copy(id[:], payload)
	return id, nil
}

func (id DocumentId) Bytes() []byte {
	out := make([]byte, idLength)
	copy(out, id[:])
	return out
}

func (id DocumentId) IsZero() bool {
	return id == DocumentId{}
}

func (id DocumentId) String() string {
	buf := make([]byte, 0, idLength+checksumLength)
	buf = append(buf, id[:]...)
	buf = append(buf, checksum(id[:])...)
	return base58.Encode(buf)
}

func (id DocumentId) URL() TaskLensUrl {
	return TaskLensUrl{ID: id}
}

func (id DocumentId) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *DocumentId) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// TaskLensUrl is the user-facing form of a DocumentId, e.g. "tasklens:2Ya9...".
type TaskLensUrl struct {
	ID DocumentId
}

func ParseURL(s string) (TaskLensUrl, error) {
	rest, ok := strings.CutPrefix(s, URLScheme)
	if !ok {
		return TaskLensUrl{}, fmt.Errorf("%w: missing %q prefix", ErrInvalidIdentifier, URLScheme)
	}
	id, err := Parse(rest)
	if err != nil {
		return TaskLensUrl{}, err
	}
	return TaskLensUrl{ID: id}, nil
}

// ParseAny accepts either the bare identifier or its URL form.
func ParseAny(s string) (DocumentId, error) {
	if strings.HasPrefix(s, URLScheme) {
		u, err := ParseURL(s)
		return u.ID, err
	}
	return Parse(s)
}

func (u TaskLensUrl) String() string {
	return URLScheme + u.ID.String()
}

func (u TaskLensUrl) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *TaskLensUrl) UnmarshalText(text []byte) error {
	parsed, err := ParseURL(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:checksumLength]
}
