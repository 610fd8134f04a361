package httpserver

import (
	"encoding/json"
	"errors"
	"io"
)

// maxBodyBytes caps admin request bodies.
const maxBodyBytes = 4 << 10

// decodeJSON decodes a JSON request body into the destination struct.
// The reader will be closed after decoding.
func decodeJSON(r io.ReadCloser, dest any) error {
	defer r.Close()
	decoder := json.NewDecoder(io.LimitReader(r, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	if decoder.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
