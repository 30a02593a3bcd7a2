// Package httpapi exposes the editor over HTTP: the data API serving DBC
// tables, spells and talents, and the starter API fronting accounts and the
// server supervisor. Both speak JSON and share one error shape.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/surreal-wow/sdbeditor/internal/editstore"
	"github.com/surreal-wow/sdbeditor/internal/spells"
	"github.com/surreal-wow/sdbeditor/internal/supervisor"
	"github.com/surreal-wow/sdbeditor/internal/talent"
)

// errorBody is the error JSON both APIs return.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorBody{Error: msg, Details: details})
}

// writeFailure maps a domain error to its status. Unmapped causes are
// internal: the chain goes to the log, the body stays generic.
func writeFailure(log *logrus.Entry, w http.ResponseWriter, err error) {
	if status, ok := statusFor(err); ok {
		writeError(w, status, err.Error(), "")
		return
	}
	log.WithError(err).Error("request failed")
	writeError(w, http.StatusInternalServerError, "internal error", "")
}

// statusFor resolves the package sentinels to transport statuses. Anything
// it does not recognize is a 500 for the caller to handle.
func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, editstore.ErrInvalidFilename),
		errors.Is(err, editstore.ErrMissingPayload),
		errors.Is(err, spells.ErrUnknownField),
		errors.Is(err, talent.ErrNoClasses),
		errors.Is(err, talent.ErrUnknownClass):
		return http.StatusBadRequest, true
	case errors.Is(err, editstore.ErrFileNotFound),
		errors.Is(err, editstore.ErrRecordNotFound),
		errors.Is(err, editstore.ErrBaseMissing),
		errors.Is(err, spells.ErrSpellNotFound),
		errors.Is(err, supervisor.ErrUnknownService):
		return http.StatusNotFound, true
	case errors.Is(err, spells.ErrIDExists):
		return http.StatusConflict, true
	}
	return 0, false
}

// readBody drains a request body up to limit bytes and closes it.
func readBody(r *http.Request, limit int64) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(r.Body, limit))
	if err != nil {
		return nil, err
	}
	return body, nil
}

// decodeBody parses a JSON request body into v.
func decodeBody(r *http.Request, limit int64, v any) error {
	body, err := readBody(r, limit)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}
