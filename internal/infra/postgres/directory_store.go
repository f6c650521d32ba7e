package postgres

import (
	"context"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
)

func (s *Store) GetEmployee(ctx context.Context, employeeID string) (*domain.Employee, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var e domain.Employee
	err := s.db.QueryRowContext(ctx,
		`SELECT employeeid, fullname FROM employee WHERE employeeid = $1`, employeeID).
		Scan(&e.EmployeeID, &e.FullName)
	if isNoRows(err) {
		return nil, &domain.ErrNotFound{Resource: "teller", ID: employeeID}
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	return s.findCustomer(ctx, `customerid = $1`, customerID)
}

func (s *Store) FindCustomerByCitizenID(ctx context.Context, citizenID string) (*domain.Customer, error) {
	return s.findCustomer(ctx, `citizenid = $1`, citizenID)
}

func (s *Store) findCustomer(ctx context.Context, where, arg string) (*domain.Customer, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var c domain.Customer
	err := s.db.QueryRowContext(ctx,
		`SELECT customerid, fullname, citizenid FROM customer WHERE `+where, arg).
		Scan(&c.CustomerID, &c.FullName, &c.CitizenID)
	if isNoRows(err) {
		return nil, &domain.ErrNotFound{Resource: "customer", ID: arg}
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
