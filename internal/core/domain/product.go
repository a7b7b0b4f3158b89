package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidProduct = errors.New("invalid product record")

// Product is the record returned by the product service
type Product struct {
	Code                  string
	Class                 string
	Plan                  string
	ListedPrice           decimal.Decimal
	PostCodesInService    []string
	PostCodesWithDiscount []string
	PostCodeDiscountRate  decimal.Decimal
}

// Validate checks the price fields the pricing calculation relies on.
func (p Product) Validate() error {
	if p.ListedPrice.IsNegative() {
		return fmt.Errorf("%w: %s has negative listed price %s", ErrInvalidProduct, p.Code, p.ListedPrice)
	}
	if p.PostCodeDiscountRate.IsNegative() || p.PostCodeDiscountRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: %s has discount rate %s outside [0,1)", ErrInvalidProduct, p.Code, p.PostCodeDiscountRate)
	}
	return nil
}

// ServesPostCode reports whether postCode is in the service area.
func (p Product) ServesPostCode(postCode string) bool {
	return containsFold(p.PostCodesInService, postCode)
}

// DiscountsPostCode reports whether postCode qualifies for the post code discount.
func (p Product) DiscountsPostCode(postCode string) bool {
	return containsFold(p.PostCodesWithDiscount, postCode)
}

func containsFold(codes []string, code string) bool {
	for _, c := range codes {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}
