package inventory

import (
	"encoding/json"
	"errors"
	"net/http"
)

func decodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

// statusForError maps the domain error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	var (
		validation *ValidationError
		ambiguous  *AmbiguousIdentityError
		notFound   *NotFoundError
		tagFormat  *TagFormatError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &tagFormat):
		return http.StatusBadRequest
	case errors.As(err, &ambiguous):
		return http.StatusConflict
	case errors.As(err, &notFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
