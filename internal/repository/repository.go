package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/foxzi/msghub/internal/db"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store bundles the repositories over one database
type Store struct {
	DB         *db.DB
	Campaigns  *CampaignRepository
	Deliveries *DeliveryRepository
	Logs       *LogRepository
}

// NewStore creates repositories bound to d
func NewStore(d *db.DB) *Store {
	return &Store{
		DB:         d,
		Campaigns:  NewCampaignRepository(d),
		Deliveries: NewDeliveryRepository(d),
		Logs:       NewLogRepository(d),
	}
}

// InTx runs fn with a Store whose repositories share one transaction
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.DB.InTx(ctx, func(tx *sql.Tx) error {
		return fn(&Store{
			DB:         s.DB,
			Campaigns:  s.Campaigns.WithTx(tx),
			Deliveries: s.Deliveries.WithTx(tx),
			Logs:       s.Logs.WithTx(tx),
		})
	})
}

func now() time.Time {
	return time.Now().UTC()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func rowsAffected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
