package docid

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
)

func TestRoundTrip(t *testing.T) {
	for i := 0; i < 50; i++ {
		id := New()
		parsed, err := Parse(id.String())
		if err != nil {
			t.Fatalf("failed to parse %q: %v", id.String(), err)
		}
		if parsed != id {
			t.Fatalf("round trip mismatch: %x != %x", parsed, id)
		}
	}
}

func TestNewIsRandom(t *testing.T) {
	if New() == New() {
		t.Fatal("expected two fresh ids to differ")
	}
}

func TestParseRejectsCorruption(t *testing.T) {
	s := New().String()

	// swap a single character for a different alphabet character
	corrupted := []byte(s)
	if corrupted[3] == '2' {
		corrupted[3] = '3'
	} else {
		corrupted[3] = '2'
	}

	tooShort, _ := FromBytes(make([]byte, idLength))
	shortRaw := append(tooShort.Bytes()[:8], checksum(tooShort.Bytes()[:8])...)

	cases := map[string]string{
		"empty":        "",
		"bad alphabet": "0OIl",
		"checksum":     string(corrupted),
		"wrong length": base58.Encode(shortRaw),
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(input); !errors.Is(err, ErrInvalidIdentifier) {
				t.Fatalf("expected ErrInvalidIdentifier, got %v", err)
			}
		})
	}
}

func TestURL(t *testing.T) {
	id := New()
	u := id.URL()
	if got := u.String(); got != "tasklens:"+id.String() {
		t.Fatalf("unexpected url %q", got)
	}
	parsed, err := ParseURL(u.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed.ID != id {
		t.Fatal("url round trip mismatch")
	}
	if _, err := ParseURL(id.String()); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected missing prefix to fail, got %v", err)
	}
	if got, err := ParseAny(u.String()); err != nil || got != id {
		t.Fatalf("ParseAny(url) = %v, %v", got, err)
	}
	if got, err := ParseAny(id.String()); err != nil || got != id {
		t.Fatalf("ParseAny(id) = %v, %v", got, err)
	}
}

func TestJSONText(t *testing.T) {
	in := struct {
		ID  DocumentId  `json:"id"`
		URL TaskLensUrl `json:"url"`
	}{ID: New()}
	in.URL = in.ID.URL()

	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		ID  DocumentId  `json:"id"`
		URL TaskLensUrl `json:"url"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out.ID != in.ID || out.URL != in.URL {
		t.Fatalf("mismatch after json: %s", raw)
	}
}
