package config

import (
	"fmt"
	"os"

	"github.com/boddenberg/savings-ledger-go/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// CatalogSeed is the YAML file listing the saving types created on an
// empty catalog. Employees and customers are only loaded into the
// in-memory store; PostgreSQL deployments own those tables elsewhere.
//
//	types:
//	  - name: No term
//	    term: 0
//	    interestRate: "0.15"
//	    minimumDeposit: "100000"
//	employees:
//	  - id: E001
//	    name: Tran Thi Teller
//	customers:
//	  - id: C001
//	    name: Nguyen Van An
//	    citizenId: "012345678901"
type CatalogSeed struct {
	Types     []SeedType     `yaml:"types"`
	Employees []SeedEmployee `yaml:"employees"`
	Customers []SeedCustomer `yaml:"customers"`
}

// SeedEmployee is a teller in the seed file.
type SeedEmployee struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// SeedCustomer is a customer in the seed file.
type SeedCustomer struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	CitizenID string `yaml:"citizenId"`
}

// SeedType is one product in the seed file.
type SeedType struct {
	Name           string `yaml:"name"`
	Term           int    `yaml:"term"`
	InterestRate   string `yaml:"interestRate"`
	MinimumDeposit string `yaml:"minimumDeposit"`
}

// LoadCatalogSeed reads and validates a seed file.
func LoadCatalogSeed(path string) (*CatalogSeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	return ParseCatalogSeed(raw)
}

// ParseCatalogSeed decodes seed YAML.
func ParseCatalogSeed(raw []byte) (*CatalogSeed, error) {
	var seed CatalogSeed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse catalog seed: %w", err)
	}
	for i, t := range seed.Types {
		if t.Name == "" {
			return nil, fmt.Errorf("catalog seed: type %d has no name", i)
		}
		if _, err := decimal.NewFromString(t.InterestRate); err != nil {
			return nil, fmt.Errorf("catalog seed: %s: interestRate: %w", t.Name, err)
		}
		if t.MinimumDeposit != "" {
			if _, err := decimal.NewFromString(t.MinimumDeposit); err != nil {
				return nil, fmt.Errorf("catalog seed: %s: minimumDeposit: %w", t.Name, err)
			}
		}
	}
	for i, e := range seed.Employees {
		if e.ID == "" {
			return nil, fmt.Errorf("catalog seed: employee %d has no id", i)
		}
	}
	for i, c := range seed.Customers {
		if c.ID == "" || c.CitizenID == "" {
			return nil, fmt.Errorf("catalog seed: customer %d needs id and citizenId", i)
		}
	}
	return &seed, nil
}

// SavingTypes converts the seed entries into domain types.
func (s *CatalogSeed) SavingTypes() []domain.SavingType {
	out := make([]domain.SavingType, 0, len(s.Types))
	for _, t := range s.Types {
		minimum := decimal.Zero
		if t.MinimumDeposit != "" {
			minimum = decimal.RequireFromString(t.MinimumDeposit)
		}
		out = append(out, domain.SavingType{
			TypeName:            t.Name,
			TermMonths:          t.Term,
			InterestRatePercent: decimal.RequireFromString(t.InterestRate),
			MinimumDeposit:      minimum,
			IsActive:            true,
		})
	}
	return out
}

// Parties converts the seeded employees and customers into domain values.
func (s *CatalogSeed) Parties() ([]domain.Employee, []domain.Customer) {
	employees := make([]domain.Employee, 0, len(s.Employees))
	for _, e := range s.Employees {
		employees = append(employees, domain.Employee{EmployeeID: e.ID, FullName: e.Name})
	}
	customers := make([]domain.Customer, 0, len(s.Customers))
	for _, c := range s.Customers {
		customers = append(customers, domain.Customer{CustomerID: c.ID, FullName: c.Name, CitizenID: c.CitizenID})
	}
	return employees, customers
}
