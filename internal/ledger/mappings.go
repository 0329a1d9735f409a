package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMappingNotFound indicates no account is configured for a module/key pair.
var ErrMappingNotFound = errors.New("ledger: account mapping not found")

// AccountMapping binds an operational key (e.g. SALES/sales.revenue) to a
// ledger account, so workflows never hardcode account ids.
type AccountMapping struct {
	Module    string
	Key       string
	AccountID int64
}

// MappingRepository resolves account mappings.
type MappingRepository interface {
	Get(ctx context.Context, module, key string) (AccountMapping, error)
	Set(ctx context.Context, mapping AccountMapping) error
	List(ctx context.Context, module string) ([]AccountMapping, error)
}

type mappingRepository struct {
	db *pgxpool.Pool
}

// NewMappingRepository builds the pgx-backed mapping repository.
func NewMappingRepository(db *pgxpool.Pool) MappingRepository {
	return &mappingRepository{db: db}
}

func (r *mappingRepository) Get(ctx context.Context, module, key string) (AccountMapping, error) {
	var m AccountMapping
	err := r.db.QueryRow(ctx, `SELECT module, key, account_id FROM account_mappings WHERE module=$1 AND key=$2`, module, key).
		Scan(&m.Module, &m.Key, &m.AccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, ErrMappingNotFound
		}
		return AccountMapping{}, err
	}
	return m, nil
}

func (r *mappingRepository) Set(ctx context.Context, mapping AccountMapping) error {
	_, err := r.db.Exec(ctx, `INSERT INTO account_mappings (module, key, account_id) VALUES ($1,$2,$3)
ON CONFLICT (module, key) DO UPDATE SET account_id=EXCLUDED.account_id`,
		mapping.Module, mapping.Key, mapping.AccountID)
	return err
}

func (r *mappingRepository) List(ctx context.Context, module string) ([]AccountMapping, error) {
	rows, err := r.db.Query(ctx, `SELECT module, key, account_id FROM account_mappings WHERE module=$1 ORDER BY key ASC`, module)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMapping
	for rows.Next() {
		var m AccountMapping
		if err := rows.Scan(&m.Module, &m.Key, &m.AccountID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
