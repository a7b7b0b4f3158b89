package quotation

import (
	"time"

	"github.com/vietddude/quotation/internal/core/domain"
)

// EligibleAge is the minimum age, in full years, to be quoted.
const EligibleAge = 18

// Validate checks a request against the retrieved records. Rules run in
// order and the first failure is returned as a *Violation: age first, then
// service area.
func Validate(req domain.QuotationRequest, customer domain.Customer, product domain.Product, now time.Time) error {
	if age := customer.AgeAt(now); age < EligibleAge {
		return &Violation{Kind: AgeIneligible, Age: age}
	}

	if !product.ServesPostCode(req.PostCode) {
		return &Violation{Kind: OutOfServiceArea, PostCode: req.PostCode}
	}

	return nil
}
