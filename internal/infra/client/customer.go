package client

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/quotation/internal/core/domain"
	"github.com/vietddude/quotation/internal/core/retry"
)

// DateLayout is the wire format of a customer's date of birth.
const DateLayout = "2006-01-02"

type customerDTO struct {
	ID   int64  `json:"id"`
	DOB  string `json:"dob"`
	Name string `json:"name"`
}

func (d customerDTO) toDomain() (domain.Customer, error) {
	dob, err := time.Parse(DateLayout, d.DOB)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("customer %d has invalid dob %q: %w", d.ID, d.DOB, err)
	}
	return domain.Customer{ID: d.ID, DOB: dob, Name: d.Name}, nil
}

// CustomerClient reads customers from the customer service.
type CustomerClient struct {
	*baseClient
}

func NewCustomerClient(cfg Config) (*CustomerClient, error) {
	base, err := newBaseClient("customer", cfg)
	if err != nil {
		return nil, err
	}
	return &CustomerClient{baseClient: base}, nil
}

// GetCustomer returns nil when the service does not know the id.
func (c *CustomerClient) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var dto customerDTO
	found, err := c.get(ctx, fmt.Sprintf("/customers/%d", id), &dto)
	if err != nil || !found {
		return nil, err
	}

	customer, err := dto.toDomain()
	if err != nil {
		return nil, retry.Permanent(err)
	}
	return &customer, nil
}

// ListCustomers returns every customer the service knows.
func (c *CustomerClient) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	var dtos []customerDTO
	if _, err := c.get(ctx, "/customers", &dtos); err != nil {
		return nil, err
	}

	customers := make([]domain.Customer, 0, len(dtos))
	for _, dto := range dtos {
		customer, err := dto.toDomain()
		if err != nil {
			return nil, retry.Permanent(err)
		}
		customers = append(customers, customer)
	}
	return customers, nil
}
