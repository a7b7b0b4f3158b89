package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/quotation/internal/core/domain"
	"github.com/vietddude/quotation/internal/core/quotation"
	"github.com/vietddude/quotation/internal/core/retry"
)

const maxRequestBody = 1 << 20

// statusClientClosedRequest reports a request abandoned by its caller.
const statusClientClosedRequest = 499

// QuotationResponse is the wire form of a quotation.
type QuotationResponse struct {
	QuotationCode string      `json:"quotationCode"`
	CustomerID    int64       `json:"customerId"`
	ProductCode   string      `json:"productCode"`
	Amount        json.Number `json:"amount"`
	ExpiryTime    time.Time   `json:"expiryTime"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// ErrorResponse describes a failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toResponse(q *domain.Quotation) QuotationResponse {
	return QuotationResponse{
		QuotationCode: q.Code,
		CustomerID:    q.CustomerID,
		ProductCode:   q.ProductCode,
		Amount:        json.Number(q.Amount.StringFixed(quotation.AmountPlaces)),
		ExpiryTime:    q.ExpiryTime,
		CreatedAt:     q.CreatedAt,
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req domain.QuotationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code:    "invalid_request",
			Message: "invalid request body",
		})
		return
	}

	q, err := s.service.Generate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", "/quotations/"+q.Code)
	writeJSON(w, http.StatusCreated, toResponse(q))
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	q, err := s.service.Fetch(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(q))
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)

	message := err.Error()
	if status == statusClientClosedRequest {
		slog.Info("Quotation request canceled by client", "error", err)
		message = "client closed request"
	}
	if status >= http.StatusInternalServerError {
		slog.Error("Quotation request failed", "status", status, "error", err)
		message = http.StatusText(status)
	}
	if v, ok := quotation.ViolationOf(err); ok {
		message = v.Error()
	}

	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, quotation.ErrRecordNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, quotation.ErrCriteriaNotFulfilled):
		return http.StatusUnprocessableEntity, "criteria_not_fulfilled"
	case errors.Is(err, quotation.ErrPersistenceConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, retry.ErrRetriesExhausted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "canceled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
