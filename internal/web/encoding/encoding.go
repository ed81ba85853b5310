package encoding

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/calmid/go-grant/internal/oauth"
)

// EncodeError writes an OAuth error body, as returned by the token
// endpoint and other JSON surfaces.
func EncodeError(w http.ResponseWriter, status int, code oauth.ErrorCode, description string) error {
	return Encode(w, status, oauth.ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}

func Encode[T any](w http.ResponseWriter, status int, v T) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}

func Decode[T any](r io.Reader) (T, error) {
	var v T
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return v, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}
