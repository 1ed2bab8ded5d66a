// Package seal turns a recovery phrase into the symmetric key that encrypts sync payloads and the room key that clients
// present to the server. The server only ever sees the room key.
package seal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/astromechza/tasklens-sync/pkg/protocol"
)

const KeySize = chacha20poly1305.KeySize

var (
	// keySalt is fixed so that every device derives the same key from the phrase alone.
	keySalt = []byte("tasklens_app_v1!")

	roomContext = []byte("TaskLens_SyncID_v1")

	ErrOpen = errors.New("failed to open payload")
)

// argon2id parameters, matching the defaults used by the other clients
const (
	argonTime    = 2
	argonMemory  = 19 * 1024
	argonThreads = 1
)

type Key [KeySize]byte

// DeriveKey hashes the phrase with Argon2id. Surrounding whitespace is ignored and inner runs collapse to one space.
func DeriveKey(phrase string) (Key, error) {
	var key Key
	normalized := strings.Join(strings.Fields(phrase), " ")
	if normalized == "" {
		return key, errors.New("phrase must not be empty")
	}
	copy(key[:], argon2.IDKey([]byte(normalized), keySalt, argonTime, argonMemory, argonThreads, KeySize))
	return key, nil
}

// RoomKey is the hex SHA-256 of the key followed by a fixed context string.
func (k Key) RoomKey() string {
	h := sha256.New()
	h.Write(k[:])
	h.Write(roomContext)
	return hex.EncodeToString(h.Sum(nil))
}

// Seal encrypts the plaintext under a fresh random nonce and returns the encoded blob.
func (k Key) Seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(k[:])
	if err != nil {
		return nil, fmt.Errorf("failed to setup cipher: %w", err)
	}
	var blob protocol.EncryptedBlob
	if _, err := rand.Read(blob.Nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	blob.Ciphertext = aead.Seal(nil, blob.Nonce[:], plaintext, nil)
	return blob.Bytes(), nil
}

func (k Key) Open(raw []byte) ([]byte, error) {
	blob, err := protocol.ParseEncryptedBlob(raw)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(k[:])
	if err != nil {
		return nil, fmt.Errorf("failed to setup cipher: %w", err)
	}
	out, err := aead.Open(nil, blob.Nonce[:], blob.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong key or corrupted data", ErrOpen)
	}
	return out, nil
}
