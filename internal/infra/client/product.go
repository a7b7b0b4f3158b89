package client

import (
	"context"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/vietddude/quotation/internal/core/domain"
)

type productDTO struct {
	ProductCode           string          `json:"productCode"`
	ProductClass          string          `json:"productClass"`
	ProductPlan           string          `json:"productPlan"`
	ListedPrice           decimal.Decimal `json:"listedPrice"`
	PostCodesInService    []string        `json:"postCodesInService"`
	PostCodesWithDiscount []string        `json:"postCodesWithDiscount"`
	PostCodeDiscountRate  decimal.Decimal `json:"postCodeDiscountRate"`
}

func (d productDTO) toDomain() domain.Product {
	return domain.Product{
		Code:                  d.ProductCode,
		Class:                 d.ProductClass,
		Plan:                  d.ProductPlan,
		ListedPrice:           d.ListedPrice,
		PostCodesInService:    d.PostCodesInService,
		PostCodesWithDiscount: d.PostCodesWithDiscount,
		PostCodeDiscountRate:  d.PostCodeDiscountRate,
	}
}

// ProductClient reads the product catalogue from the product service.
type ProductClient struct {
	*baseClient
}

func NewProductClient(cfg Config) (*ProductClient, error) {
	base, err := newBaseClient("product", cfg)
	if err != nil {
		return nil, err
	}
	return &ProductClient{baseClient: base}, nil
}

// GetProduct returns nil when the service does not know the code.
func (c *ProductClient) GetProduct(ctx context.Context, code string) (*domain.Product, error) {
	var dto productDTO
	found, err := c.get(ctx, "/products/"+url.PathEscape(code), &dto)
	if err != nil || !found {
		return nil, err
	}

	product := dto.toDomain()
	return &product, nil
}

// ListProducts returns the whole catalogue.
func (c *ProductClient) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var dtos []productDTO
	if _, err := c.get(ctx, "/products", &dtos); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(dtos))
	for _, dto := range dtos {
		products = append(products, dto.toDomain())
	}
	return products, nil
}
