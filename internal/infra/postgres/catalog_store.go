package postgres

import (
	"context"

	"github.com/boddenberg/savings-ledger-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

func (s *Store) ListTypes(ctx context.Context) ([]domain.SavingType, error) {
	ctx, end := s.span(ctx, "ListTypes")
	defer end()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT `+typeColumns+` FROM typesaving ORDER BY typeid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.SavingType{}
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) GetType(ctx context.Context, typeID int64) (*domain.SavingType, error) {
	ctx, end := s.span(ctx, "GetType", attribute.Int64("type.id", typeID))
	defer end()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	t, err := scanType(s.db.QueryRowContext(ctx, `SELECT `+typeColumns+` FROM typesaving WHERE typeid = $1`, typeID))
	if isNoRows(err) {
		return nil, notFound("saving type", typeID)
	}
	return t, err
}

func (s *Store) CreateType(ctx context.Context, t *domain.SavingType) (*domain.SavingType, error) {
	ctx, end := s.span(ctx, "CreateType")
	defer end()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return scanType(s.db.QueryRowContext(ctx, `
INSERT INTO typesaving (typename, term, interestrate, minimumdeposit, isactive)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+typeColumns,
		t.TypeName, t.TermMonths, t.InterestRatePercent, t.MinimumDeposit, t.IsActive))
}

// UpdateType locks the type row before counting open books. Inserting a
// book takes a key-share lock on the same row through the foreign key, so
// a concurrent open waits for this transaction and is then counted or
// sees the new values.
func (s *Store) UpdateType(ctx context.Context, t *domain.SavingType, frozen bool) (*domain.SavingType, error) {
	ctx, end := s.span(ctx, "UpdateType", attribute.Int64("type.id", t.TypeID))
	defer end()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT typeid FROM typesaving WHERE typeid = $1 FOR UPDATE`, t.TypeID).Scan(&id)
	if isNoRows(err) {
		return nil, notFound("saving type", t.TypeID)
	}
	if err != nil {
		return nil, err
	}

	if frozen {
		var open int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM savingbook WHERE typeid = $1 AND status = 'Open'`, t.TypeID).Scan(&open); err != nil {
			return nil, err
		}
		if open > 0 {
			return nil, &domain.ErrInvalidState{Message: domain.MsgTypeReferenced}
		}
	}

	updated, err := scanType(tx.QueryRowContext(ctx, `
UPDATE typesaving
SET typename = $2, term = $3, interestrate = $4, minimumdeposit = $5, isactive = $6
WHERE typeid = $1
RETURNING `+typeColumns,
		t.TypeID, t.TypeName, t.TermMonths, t.InterestRatePercent, t.MinimumDeposit, t.IsActive))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}
