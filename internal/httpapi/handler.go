// Package httpapi exposes the ledger and reporting views to staff
// tooling. It only parses input and maps errors onto status codes; every
// business decision stays in the ledger.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/biblioteca/services/loans/internal/catalog"
	"github.com/biblioteca/services/loans/internal/ledger"
	"github.com/biblioteca/services/loans/internal/reports"
	"go.uber.org/zap"
)

// Handler serves the loan endpoints
type Handler struct {
	ledger  *ledger.Ledger
	reports *reports.Reports
	log     *zap.Logger
}

// NewHandler creates a new HTTP handler for loan operations
func NewHandler(l *ledger.Ledger, r *reports.Reports, log *zap.Logger) *Handler {
	return &Handler{
		ledger:  l,
		reports: r,
		log:     log,
	}
}

// Register mounts the loan routes on the given mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /loans", h.createLoan)
	mux.HandleFunc("POST /loans/{id}/renew", h.renewLoan)
	mux.HandleFunc("POST /loans/{id}/return", h.returnLoan)
	mux.HandleFunc("GET /loans/{id}", h.getLoan)
	mux.HandleFunc("GET /reports/overdue", h.overdueLoans)
	mux.HandleFunc("GET /reports/popular", h.popularBooks)
	mux.HandleFunc("GET /reports/stats", h.dashboardStats)
}

type createLoanRequest struct {
	BookID       string `json:"book_id"`
	ReaderID     string `json:"reader_id"`
	EmployeeID   string `json:"employee_id"`
	DurationDays int    `json:"duration_days"`
}

func (h *Handler) createLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DurationDays == 0 {
		req.DurationDays = ledger.DefaultLoanDays
	}

	loan, err := h.ledger.CreateLoan(r.Context(), ledger.CreateLoanParams{
		BookID:       req.BookID,
		ReaderID:     req.ReaderID,
		EmployeeID:   req.EmployeeID,
		DurationDays: req.DurationDays,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, loan)
}

type renewLoanRequest struct {
	ExtraDays int `json:"extra_days"`
}

func (h *Handler) renewLoan(w http.ResponseWriter, r *http.Request) {
	var req renewLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ExtraDays == 0 {
		req.ExtraDays = ledger.DefaultLoanDays
	}

	loan, err := h.ledger.RenewLoan(r.Context(), r.PathValue("id"), req.ExtraDays)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loan)
}

type returnLoanRequest struct {
	ReturnDate string `json:"return_date,omitempty"` // YYYY-MM-DD, defaults to today
}

func (h *Handler) returnLoan(w http.ResponseWriter, r *http.Request) {
	var req returnLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	returnDate := time.Now()
	if req.ReturnDate != "" {
		parsed, err := time.Parse("2006-01-02", req.ReturnDate)
		if err != nil {
			http.Error(w, "invalid return_date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		returnDate = parsed
	}

	loan, err := h.ledger.ReturnLoan(r.Context(), r.PathValue("id"), returnDate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loan)
}

func (h *Handler) getLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.ledger.GetLoan(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loan)
}

func (h *Handler) overdueLoans(w http.ResponseWriter, r *http.Request) {
	overdue, err := h.reports.OverdueLoans(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, overdue)
}

func (h *Handler) popularBooks(w http.ResponseWriter, r *http.Request) {
	popular, err := h.reports.PopularBooks(r.Context(), 10)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, popular)
}

func (h *Handler) dashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reports.DashboardStats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, ledger.ErrLoanNotFound),
		errors.Is(err, catalog.ErrBookNotFound),
		errors.Is(err, catalog.ErrReaderNotFound),
		errors.Is(err, catalog.ErrEmployeeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidDuration),
		errors.Is(err, ledger.ErrInvalidReturnDate):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrBookUnavailable),
		errors.Is(err, ledger.ErrReaderInactive),
		errors.Is(err, ledger.ErrLoanLimitExceeded),
		errors.Is(err, ledger.ErrReaderHasOverdue),
		errors.Is(err, ledger.ErrAlreadyReturned),
		errors.Is(err, ledger.ErrOverdueNotRenewable),
		errors.Is(err, ledger.ErrRenewalLimitReached):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrConcurrencyTimeout):
		status = http.StatusServiceUnavailable
	default:
		h.log.Error("Unexpected error", zap.Error(err))
	}

	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
