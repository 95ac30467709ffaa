package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"rette/internal/core"
	applog "rette/internal/log"
	"rette/internal/services"
	"rette/internal/storage"
)

// headerUserID selects the account a request operates on. Absent header
// means the single local user.
const headerUserID = "X-User-ID"

const defaultUserID = "local"

// maxBodyBytes caps request bodies; a full snapshot for one user is far
// below this.
const maxBodyBytes = 1 << 20

func requestUser(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(headerUserID)); id != "" {
		return id
	}
	return defaultUserID
}

type errorResponse struct {
	Error    string `json:"error"`
	MinCount int    `json:"min_count,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeBody parses a JSON request body into dst, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// pathID extracts a numeric path segment captured by the router.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id in path")
	}
	return id, nil
}

// writeServiceError maps domain and storage failures onto HTTP statuses.
// Storage details never reach the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var countErr *core.CountBelowPaidError
	if errors.As(err, &countErr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:    countErr.Error(),
			MinCount: countErr.MinCount,
		})
		return
	}

	switch {
	case errors.Is(err, storage.ErrSemesterNotFound),
		errors.Is(err, storage.ErrInstallmentNotFound),
		errors.Is(err, storage.ErrExpenseNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInstallmentNotPaid),
		errors.Is(err, services.ErrInvalidCount),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidStatus),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrEmptyPrimary),
		errors.Is(err, core.ErrEmptySecondary),
		errors.Is(err, core.ErrEmptyTermID),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrPaidUnlinked),
		errors.Is(err, core.ErrUnpaidLinked):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldError, err,
			applog.FieldPath, r.URL.Path)
		writeError(w, http.StatusInternalServerError, "changes were not saved")
	}
}

// sanitizeInput trims whitespace and strips control characters except
// tab, newline, and carriage return.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
