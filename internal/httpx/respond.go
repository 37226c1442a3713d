package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ariefcatur/go-realtime-bowls/internal/apperr"
	"github.com/sirupsen/logrus"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    apperr.Code       `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to its status and error body. Internal causes are
// logged, never echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		log.WithError(err).WithField("url", r.URL.Path).Error("internal error")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
			Code: apperr.CodeInternal, Message: "internal error",
		}})
		return
	}
	writeJSON(w, e.Code.HTTPStatus(), errorBody{Error: errorDetail{
		Code: e.Code, Message: e.Message, Fields: e.Fields,
	}})
}

const maxBody = 64 << 10

// decode reads a JSON body into v; unknown fields and trailing data are
// rejected as validation errors.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validation(map[string]string{"body": "invalid JSON: " + err.Error()})
	}
	if dec.More() {
		return apperr.Validation(map[string]string{"body": "unexpected data after JSON object"})
	}
	return nil
}
