package cache

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

type envelope struct {
	Status   int               `json:"status"`
	Header   http.Header       `json:"header,omitempty"`
	Vary     map[string]string `json:"vary,omitempty"`
	Body     []byte            `json:"body"`
	StoredAt time.Time         `json:"stored_at"`
}

// Encode serializes an entry for backends that store opaque bytes.
func Encode(entry Entry) ([]byte, error) {
	data, err := json.Marshal(envelope{
		Status:   entry.Status,
		Header:   entry.Header,
		Vary:     entry.Vary,
		Body:     entry.Body,
		StoredAt: entry.StoredAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	return data, nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) (Entry, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}

	return Entry{
		Status:   env.Status,
		Header:   env.Header,
		Vary:     env.Vary,
		Body:     env.Body,
		StoredAt: env.StoredAt,
	}, nil
}
