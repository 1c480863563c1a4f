package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/requestid"
)

// JSONResponse is the envelope of every API answer.
type JSONResponse struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code      string              `json:"code,omitempty"`
	Message   string              `json:"message,omitempty"`
	Details   map[string][]string `json:"details,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeResult writes v without the envelope.
func writeResult(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, JSONResponse{Data: data})
}

// respondError renders err in the envelope. Server errors are logged with
// the cause; the body only carries the classified key.
func respondError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	reqID := requestid.FromContext(r.Context())

	var verr ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, JSONResponse{Error: &ErrorDetail{
			Code:      "validation_error",
			Message:   "request validation failed",
			Details:   verr,
			RequestID: reqID,
		}})
		return
	}

	he := toHTTPError(err)
	message := http.StatusText(he.Code)
	if he.Code >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Error(err),
		)
	} else {
		message = err.Error()
		log.DebugContext(r.Context(), "request rejected", slog.String("code", he.Key), logger.Error(err))
	}
	writeJSON(w, he.Code, JSONResponse{Error: &ErrorDetail{
		Code:      he.Key,
		Message:   message,
		RequestID: reqID,
	}})
}

// decodeJSON reads a JSON body of at most limit bytes into v and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrBadRequest, fmt.Errorf("decode body: %w", err))
	}
	return validate(v)
}
