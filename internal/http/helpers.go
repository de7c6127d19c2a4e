package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"grana/internal/core"
)

const dateFormat = "2006-01-02"

// writeJSON serializes a payload with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors to HTTP status codes: unknown ids to
// 404, integrity conflicts to 409, validation failures to 400 and
// everything else to 500 without leaking internals.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrAccountNotFound),
		errors.Is(err, core.ErrDebtNotFound),
		errors.Is(err, core.ErrInstallmentNotFound),
		errors.Is(err, core.ErrRecurringNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrScheduleHasPayments):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrInvalidDirection),
		errors.Is(err, core.ErrInvalidFrequency),
		errors.Is(err, core.ErrFundingSource),
		errors.Is(err, core.ErrDayOfMonthPolicy),
		errors.Is(err, core.ErrInvalidDayOfMonth),
		errors.Is(err, core.ErrInvalidPrincipal),
		errors.Is(err, core.ErrNegativeRate),
		errors.Is(err, core.ErrInvalidInstallments),
		errors.Is(err, core.ErrInvalidAmortization),
		errors.Is(err, core.ErrInvalidHorizon):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// pathID extracts a positive integer path parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// queryInt reads an integer query parameter with a fallback.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// parseDate parses a date string in YYYY-MM-DD format.
func parseDate(dateStr string) (time.Time, error) {
	return time.Parse(dateFormat, dateStr)
}

// parseRate parses a non-negative monthly rate. Unlike amounts, a zero
// rate is legal (interest-free debt).
func parseRate(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, core.ErrNegativeRate
	}
	if d.IsNegative() {
		return decimal.Zero, core.ErrNegativeRate
	}
	return d, nil
}

func formatDate(t time.Time) string {
	return t.Format(dateFormat)
}
