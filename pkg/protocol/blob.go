package protocol

import (
	"fmt"
)

const NonceSize = 24

// EncryptedBlob is the payload contract between clients: a single use XChaCha20-Poly1305 nonce followed by the sealed
// ciphertext and tag. The server never looks inside.
type EncryptedBlob struct {
	Nonce      [NonceSize]byte
	Ciphertext []byte
}

func (b EncryptedBlob) Bytes() []byte {
	out := make([]byte, 0, NonceSize+len(b.Ciphertext))
	out = append(out, b.Nonce[:]...)
	return append(out, b.Ciphertext...)
}

func ParseEncryptedBlob(raw []byte) (EncryptedBlob, error) {
	var b EncryptedBlob
	if len(raw) < NonceSize {
		return b, fmt.Errorf("%w: blob of %d bytes is shorter than its nonce", ErrMalformed, len(raw))
	}
	copy(b.Nonce[:], raw[:NonceSize])
	b.Ciphertext = append([]byte{}, raw[NonceSize:]...)
	return b, nil
}
