package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"grana/internal/core"
	"grana/internal/services"
)

type forecastPointDTO struct {
	Date        string `json:"date"`
	Incoming    string `json:"incoming"`
	Outgoing    string `json:"outgoing"`
	Balance     string `json:"balance"`
	Description string `json:"description,omitempty"`
	Estimated   bool   `json:"estimated,omitempty"`
}

type forecastDTO struct {
	StartingBalance string             `json:"starting_balance"`
	DataPoints      []forecastPointDTO `json:"data_points"`
}

func toForecastDTO(f core.CashFlowForecast) forecastDTO {
	out := forecastDTO{
		StartingBalance: f.StartingBalance.StringFixed(core.CurrencyPlaces),
		DataPoints:      make([]forecastPointDTO, 0, len(f.DataPoints)),
	}
	for _, p := range f.DataPoints {
		out.DataPoints = append(out.DataPoints, forecastPointDTO{
			Date:        formatDate(p.Date),
			Incoming:    p.Incoming.StringFixed(core.CurrencyPlaces),
			Outgoing:    p.Outgoing.StringFixed(core.CurrencyPlaces),
			Balance:     p.Balance.StringFixed(core.CurrencyPlaces),
			Description: p.Description,
			Estimated:   p.Estimated,
		})
	}
	return out
}

// handleForecast serves GET /api/forecast?months=N.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	months, err := queryInt(r, "months", s.defaultHorizon)
	if err != nil {
		writeError(w, r, fmt.Errorf("months: %w", core.ErrInvalidHorizon))
		return
	}

	forecast, err := s.forecaster.Forecast(r.Context(), s.userID, months)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toForecastDTO(forecast))
}

type generateRequest struct {
	AsOf string `json:"as_of,omitempty"` // YYYY-MM-DD, defaults to today
}

type generationFailureDTO struct {
	RecurringID int64  `json:"recurring_id"`
	Error       string `json:"error"`
}

type generationReportDTO struct {
	Created  int                    `json:"created"`
	Skipped  int                    `json:"skipped"`
	Failures []generationFailureDTO `json:"failures,omitempty"`
}

// handleGenerate serves POST /api/recurring/generate. The body is
// optional; an empty body generates everything due today.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now()
	if r.Body != nil && r.ContentLength != 0 {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
		if req.AsOf != "" {
			parsed, err := parseDate(req.AsOf)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "as_of must be YYYY-MM-DD"})
				return
			}
			asOf = parsed
		}
	}

	report, err := s.coordinator.GenerateDue(r.Context(), s.userID, asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}

	dto := generationReportDTO{Created: report.Created, Skipped: report.Skipped}
	for _, f := range report.Failures {
		dto.Failures = append(dto.Failures, generationFailureDTO{
			RecurringID: f.RecurringID,
			Error:       f.Err.Error(),
		})
	}
	status := http.StatusOK
	if len(report.Failures) > 0 {
		// Partial success: some recurrences generated, others failed.
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, dto)
}

type installmentDTO struct {
	Sequence         int    `json:"sequence"`
	DueDate          string `json:"due_date"`
	PaidDate         string `json:"paid_date,omitempty"`
	TotalAmount      string `json:"total_amount"`
	PrincipalAmount  string `json:"principal_amount"`
	InterestAmount   string `json:"interest_amount"`
	RemainingBalance string `json:"remaining_balance"`
}

func toInstallmentDTOs(installments []core.DebtInstallment) []installmentDTO {
	out := make([]installmentDTO, 0, len(installments))
	for _, inst := range installments {
		dto := installmentDTO{
			Sequence:         inst.Sequence,
			DueDate:          formatDate(inst.DueDate),
			TotalAmount:      inst.TotalAmount.StringFixed(core.CurrencyPlaces),
			PrincipalAmount:  inst.PrincipalAmount.StringFixed(core.CurrencyPlaces),
			InterestAmount:   inst.InterestAmount.StringFixed(core.CurrencyPlaces),
			RemainingBalance: inst.RemainingBalance.StringFixed(core.CurrencyPlaces),
		}
		if !inst.PaidDate.IsZero() {
			dto.PaidDate = formatDate(inst.PaidDate)
		}
		out = append(out, dto)
	}
	return out
}

type scheduleDTO struct {
	DebtID       int64            `json:"debt_id,omitempty"`
	Installments []installmentDTO `json:"installments"`
}

// handleDebtInstallments serves GET /api/debts/{id}/installments,
// generating and persisting the schedule first if the debt has none.
func (s *Server) handleDebtInstallments(w http.ResponseWriter, r *http.Request) {
	debtID, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid debt id"})
		return
	}

	installments, err := s.debts.EnsureSchedule(r.Context(), debtID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleDTO{
		DebtID:       debtID,
		Installments: toInstallmentDTOs(installments),
	})
}

// handleRegenerateSchedule serves POST /api/debts/{id}/schedule.
func (s *Server) handleRegenerateSchedule(w http.ResponseWriter, r *http.Request) {
	debtID, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid debt id"})
		return
	}

	installments, err := s.debts.RegenerateSchedule(r.Context(), debtID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, scheduleDTO{
		DebtID:       debtID,
		Installments: toInstallmentDTOs(installments),
	})
}

type previewRequest struct {
	Principal          string `json:"principal"`
	MonthlyRate        string `json:"monthly_rate"`
	Installments       int    `json:"installments"`
	Type               string `json:"type"`
	StartDate          string `json:"start_date"`
	BulletInterestOnly bool   `json:"bullet_interest_only,omitempty"`
}

// handlePreviewSchedule serves POST /api/debts/schedule/preview: a pure
// amortization run that persists nothing.
func (s *Server) handlePreviewSchedule(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	principal, err := core.ParseDecimal(req.Principal)
	if err != nil {
		writeError(w, r, fmt.Errorf("principal: %w", core.ErrInvalidPrincipal))
		return
	}
	rate, err := parseRate(req.MonthlyRate)
	if err != nil {
		writeError(w, r, fmt.Errorf("monthly_rate: %w", core.ErrNegativeRate))
		return
	}
	startDate, err := parseDate(req.StartDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "start_date must be YYYY-MM-DD"})
		return
	}

	terms := services.ScheduleTerms{
		Principal:          principal,
		MonthlyRate:        rate,
		Installments:       req.Installments,
		Type:               core.AmortizationType(req.Type),
		StartDate:          startDate,
		BulletInterestOnly: req.BulletInterestOnly,
	}
	installments, err := s.debts.PreviewSchedule(terms)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleDTO{Installments: toInstallmentDTOs(installments)})
}

// handleHealth performs a basic liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

// handleReady reports readiness once the storage backend answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
