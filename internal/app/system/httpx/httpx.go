// internal/app/system/httpx/httpx.go
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// maxBodyBytes caps JSON request bodies. API payloads here are small;
// anything larger is a client error.
const maxBodyBytes = 1 << 20

// errorResponse is the JSON shape for all error replies.
type errorResponse struct {
	Error string `json:"error"`
}

// JSON writes v as a JSON response with the given status code.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes a JSON error response with the given status code.
func Error(w http.ResponseWriter, code int, msg string) {
	JSON(w, code, errorResponse{Error: msg})
}

// Decode reads the request body as JSON into dst.
func Decode(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

// ErrBadID reports a URL parameter that is not a valid ObjectID hex.
var ErrBadID = errors.New("invalid id")

// IDParam parses the named chi URL parameter as an ObjectID.
func IDParam(r *http.Request, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, name))
	if err != nil {
		return primitive.NilObjectID, ErrBadID
	}
	return id, nil
}
