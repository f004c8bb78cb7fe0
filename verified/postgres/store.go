package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"

	"github.com/code-payments/purchase-engine/model"
	"github.com/code-payments/purchase-engine/verified"
)

const verifiedReceiptTable = "verified_receipt"

// Schema creates the table backing this store.
const Schema = `
CREATE TABLE IF NOT EXISTS verified_receipt (
	"platform"  TEXT        NOT NULL,
	"productId" TEXT        NOT NULL,
	"data"      JSONB       NOT NULL,
	"updatedAt" TIMESTAMPTZ NOT NULL,
	PRIMARY KEY ("platform", "productId")
);
`

type pgStore struct {
	db *sqlx.DB
}

func NewInPostgres(db *sql.DB) verified.Store {
	return &pgStore{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *pgStore) reset() {
	_, err := s.db.Exec(`DELETE FROM ` + verifiedReceiptTable)
	if err != nil {
		panic(err)
	}
}

type recordModel struct {
	Platform  string       `db:"platform"`
	ProductID string       `db:"productId"`
	Data      []byte       `db:"data"`
	UpdatedAt sql.NullTime `db:"updatedAt"`
}

func (s *pgStore) Put(ctx context.Context, record *verified.Record) error {
	insert := `
		INSERT INTO ` + verifiedReceiptTable + ` ("platform", "productId", "data", "updatedAt")
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, insert,
		string(record.Platform), record.ProductID, []byte(record.Data), record.UpdatedAt)
	if err == nil {
		return nil
	}

	// Records are updated in place on conflict.
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return err
	}

	update := `
		UPDATE ` + verifiedReceiptTable + `
		SET "data" = $3, "updatedAt" = $4
		WHERE "platform" = $1 AND "productId" = $2
	`
	_, err = s.db.ExecContext(ctx, update,
		string(record.Platform), record.ProductID, []byte(record.Data), record.UpdatedAt)
	return err
}

func (s *pgStore) Get(ctx context.Context, platform model.Platform, productID string) (*verified.Record, error) {
	var m recordModel
	query := `SELECT "platform", "productId", "data", "updatedAt" FROM ` + verifiedReceiptTable + `
		WHERE "platform" = $1 AND "productId" = $2`
	err := s.db.GetContext(ctx, &m, query, string(platform), productID)
	if err == sql.ErrNoRows {
		return nil, verified.ErrNotFound
	} else if err != nil {
		return nil, err
	}

	return fromModel(&m), nil
}

func (s *pgStore) List(ctx context.Context, platform model.Platform) ([]*verified.Record, error) {
	var models []recordModel
	query := `SELECT "platform", "productId", "data", "updatedAt" FROM ` + verifiedReceiptTable + `
		WHERE "platform" = $1
		ORDER BY "updatedAt" ASC, "productId" ASC`
	err := s.db.SelectContext(ctx, &models, query, string(platform))
	if err != nil {
		return nil, err
	}

	records := make([]*verified.Record, 0, len(models))
	for i := range models {
		records = append(records, fromModel(&models[i]))
	}
	return records, nil
}

func fromModel(m *recordModel) *verified.Record {
	record := &verified.Record{
		Platform:  model.Platform(m.Platform),
		ProductID: m.ProductID,
		Data:      m.Data,
	}
	if m.UpdatedAt.Valid {
		record.UpdatedAt = m.UpdatedAt.Time
	}
	return record
}
