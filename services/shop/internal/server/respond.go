package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pearl/internal/util"
	"pearl/services/shop/internal/app"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string           `json:"error"`
	Code      string           `json:"code"`
	RequestID string           `json:"requestId,omitempty"`
	Details   []app.FieldError `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeErrorDetails(w, r, status, code, msg, nil)
}

func writeErrorDetails(w http.ResponseWriter, r *http.Request, status int, code, msg string, details []app.FieldError) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: util.RequestIDFromRequest(r),
		Details:   details,
	})
}

// statusFor maps an app error to its HTTP status and machine code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, app.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, app.ErrExpired):
		return http.StatusGone, "expired"
	case errors.Is(err, app.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, app.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, app.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeAppError renders err. Unexpected errors are logged and replaced with
// a generic message.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request_failed", "err", err)
		writeError(w, r, status, code, "internal error")
		return
	}
	var appErr *app.Error
	if errors.As(err, &appErr) {
		writeErrorDetails(w, r, status, code, appErr.Error(), appErr.Fields)
		return
	}
	writeError(w, r, status, code, err.Error())
}

// decodeJSON reads a single JSON object from the body. Unknown fields are
// rejected so typos surface as errors instead of silent no-ops.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, false)
}

// decodeOptionalJSON accepts an empty body, chunked or not, and leaves dst
// untouched in that case.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		var details []app.FieldError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			details = []app.FieldError{{Field: typeErr.Field, Reason: "wrong type, expected " + typeErr.Type.String()}}
		} else if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
			details = []app.FieldError{{Field: strings.Trim(field, `"`), Reason: "unknown field"}}
		}
		writeErrorDetails(w, r, http.StatusBadRequest, "validation_error", "invalid JSON body", details)
		return false
	}
	return true
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &app.Error{Kind: app.ErrValidation, Fields: []app.FieldError{{Field: name, Reason: "must be a non-negative integer"}}}
	}
	return n, nil
}

func queryBool(r *http.Request, name string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, &app.Error{Kind: app.ErrValidation, Fields: []app.FieldError{{Field: name, Reason: "must be true or false"}}}
	}
	return &v, nil
}

func queryTime(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, &app.Error{Kind: app.ErrValidation, Fields: []app.FieldError{{Field: name, Reason: "use RFC 3339, e.g. 2024-01-02T15:04:05Z"}}}
	}
	return t, nil
}

func paging(r *http.Request) (app.Paging, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return app.Paging{}, err
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return app.Paging{}, err
	}
	return app.Paging{Limit: limit, Offset: offset}, nil
}
