package customers

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ims/meridian/internal/platform/httpx"
)

type memoryCustomerRepo struct {
	nextID    int64
	customers map[int64]Customer
}

func newMemoryCustomerRepo() *memoryCustomerRepo {
	return &memoryCustomerRepo{nextID: 1, customers: map[int64]Customer{}}
}

func (m *memoryCustomerRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *memoryCustomerRepo) Get(_ context.Context, id int64) (*Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	return &c, nil
}

func (m *memoryCustomerRepo) GetByCode(_ context.Context, code string) (*Customer, error) {
	for _, c := range m.customers {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, httpx.ErrNotFound
}

func (m *memoryCustomerRepo) List(_ context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	var out []Customer
	for _, c := range m.customers {
		if req.IsActive != nil && c.IsActive != *req.IsActive {
			continue
		}
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *memoryCustomerRepo) Create(_ context.Context, customer Customer) (int64, error) {
	for _, c := range m.customers {
		if c.Code == customer.Code {
			return 0, httpx.ErrDuplicate
		}
	}
	customer.ID = m.nextID
	m.nextID++
	m.customers[customer.ID] = customer
	return customer.ID, nil
}

func (m *memoryCustomerRepo) Update(_ context.Context, id int64, updates map[string]interface{}) error {
	c, ok := m.customers[id]
	if !ok {
		return httpx.ErrNotFound
	}
	if v, ok := updates["name"]; ok {
		c.Name = v.(string)
	}
	if v, ok := updates["is_active"]; ok {
		c.IsActive = v.(bool)
	}
	if v, ok := updates["credit_limit"]; ok {
		c.CreditLimit = v.(float64)
	}
	m.customers[id] = c
	return nil
}

func (m *memoryCustomerRepo) GenerateCode(_ context.Context) (string, error) {
	return fmt.Sprintf("CUST-%05d", m.nextID), nil
}

func TestCreateCustomerGeneratesCode(t *testing.T) {
	svc := NewService(newMemoryCustomerRepo())

	c, err := svc.Create(context.Background(), CreateCustomerRequest{Name: "Acme Ltd", Country: "de"}, 1)
	require.NoError(t, err)
	require.Equal(t, "CUST-00001", c.Code)
	require.Equal(t, "DE", c.Country)
	require.True(t, c.IsActive)
}

func TestCreateCustomerDuplicateCode(t *testing.T) {
	svc := NewService(newMemoryCustomerRepo())

	_, err := svc.Create(context.Background(), CreateCustomerRequest{Code: "acme", Name: "Acme", Country: "DE"}, 1)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), CreateCustomerRequest{Code: "ACME", Name: "Other", Country: "DE"}, 1)
	require.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestUpdateCustomerPartial(t *testing.T) {
	svc := NewService(newMemoryCustomerRepo())

	created, err := svc.Create(context.Background(), CreateCustomerRequest{Name: "Acme", Country: "DE"}, 1)
	require.NoError(t, err)

	name := "Acme GmbH"
	active := false
	updated, err := svc.Update(context.Background(), created.ID, UpdateCustomerRequest{Name: &name, IsActive: &active})
	require.NoError(t, err)
	require.Equal(t, "Acme GmbH", updated.Name)
	require.False(t, updated.IsActive)
	require.Equal(t, created.Code, updated.Code)
}

func TestUpdateCustomerNotFound(t *testing.T) {
	svc := NewService(newMemoryCustomerRepo())

	name := "Nobody"
	_, err := svc.Update(context.Background(), 42, UpdateCustomerRequest{Name: &name})
	require.ErrorIs(t, err, httpx.ErrNotFound)
}
