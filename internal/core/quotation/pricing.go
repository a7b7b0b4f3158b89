package quotation

import (
	"github.com/shopspring/decimal"

	"github.com/vietddude/quotation/internal/core/domain"
)

// AmountPlaces is the currency precision quotations are rounded to.
const AmountPlaces = 2

var one = decimal.NewFromInt(1)

// Price returns the quoted amount: the listed price, discounted by the
// product's post code rate when the request's post code is in the discount
// list. There is a single discount tier.
func Price(req domain.QuotationRequest, product domain.Product) decimal.Decimal {
	amount := product.ListedPrice

	if product.DiscountsPostCode(req.PostCode) {
		amount = amount.Mul(one.Sub(product.PostCodeDiscountRate))
	}

	return amount.Round(AmountPlaces)
}
