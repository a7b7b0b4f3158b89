package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidRequest = errors.New("invalid quotation request")

// QuotationRequest is what a caller asks to be quoted
type QuotationRequest struct {
	CustomerID  int64  `json:"customerId"`
	ProductCode string `json:"productCode"`
	PostCode    string `json:"postCode"`
}

// Validate rejects requests that cannot identify a customer, product or location.
func (r QuotationRequest) Validate() error {
	switch {
	case r.CustomerID <= 0:
		return fmt.Errorf("%w: customer id must be positive, got %d", ErrInvalidRequest, r.CustomerID)
	case strings.TrimSpace(r.ProductCode) == "":
		return fmt.Errorf("%w: product code is required", ErrInvalidRequest)
	case strings.TrimSpace(r.PostCode) == "":
		return fmt.Errorf("%w: post code is required", ErrInvalidRequest)
	}
	return nil
}

// Quotation is a persisted price offer. It is never mutated after creation.
type Quotation struct {
	Code        string          `json:"quotationCode"`
	CustomerID  int64           `json:"customerId"`
	ProductCode string          `json:"productCode"`
	Amount      decimal.Decimal `json:"amount"`
	ExpiryTime  time.Time       `json:"expiryTime"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// SameContent reports whether q and other describe the same offer.
func (q Quotation) SameContent(other Quotation) bool {
	return q.Code == other.Code &&
		q.CustomerID == other.CustomerID &&
		q.ProductCode == other.ProductCode &&
		q.Amount.Equal(other.Amount) &&
		q.ExpiryTime.Equal(other.ExpiryTime)
}

// Expired reports whether the quotation is no longer valid at now.
func (q Quotation) Expired(now time.Time) bool {
	return !now.Before(q.ExpiryTime)
}
