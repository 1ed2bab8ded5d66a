package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Payload is opaque bytes encoded on the wire as a JSON array of numbers, e.g. [1,2,255].
type Payload []byte

func (p Payload) MarshalJSON() ([]byte, error) {
	var buff bytes.Buffer
	buff.Grow(len(p)*4 + 2)
	buff.WriteByte('[')
	for i, b := range p {
		if i > 0 {
			buff.WriteByte(',')
		}
		buff.WriteString(strconv.Itoa(int(b)))
	}
	buff.WriteByte(']')
	return buff.Bytes(), nil
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("payload must be an array of bytes: %w", err)
	}
	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return fmt.Errorf("payload byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	*p = out
	return nil
}
