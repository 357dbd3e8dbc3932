// Package jsoncodec centralises JSON encoding so every service uses the
// same sonic configuration for bodies, envelopes, and event payloads.
package jsoncodec

import (
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	enc := defaultConfig.NewEncoder(w)
	return enc.Encode(v)
}

func Decode(r io.Reader, v any) error {
	dec := defaultConfig.NewDecoder(r)
	return dec.Decode(v)
}

// MaxBodyBytes bounds request bodies the same way the original gateway's
// body parser did (10mb).
const MaxBodyBytes = 10 << 20

// ReadBody decodes a JSON request body into v, limiting its size.
func ReadBody(r *http.Request, v any) error {
	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	defer body.Close()
	if err := Decode(body, v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// ReadRawBody decodes a JSON request body into an untyped map, preserving
// unknown fields so validation can echo the raw input back.
func ReadRawBody(r *http.Request) (map[string]any, error) {
	payload := map[string]any{}
	if r.Body == nil || r.ContentLength == 0 {
		return payload, nil
	}
	if err := ReadBody(r, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteJSON writes v with the given status and a JSON content type.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return Encode(w, v)
}
