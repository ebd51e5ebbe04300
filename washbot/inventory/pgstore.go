package inventory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/studcom-mm/washbot/washbot/logger"
)

// SheetRow mirrors one positional row of a collection. The table emulates the
// externally hosted spreadsheet: positions are dense and 1-based per
// collection, and every operation is an independent statement with no
// transaction around it, exactly like the remote substrate.
type SheetRow struct {
	bun.BaseModel `bun:"table:sheet_rows,alias:sr"`

	ID         int64    `bun:"id,pk,autoincrement"`
	Collection string   `bun:"collection,notnull"`
	Pos        int      `bun:"pos,notnull"`
	Cells      []string `bun:"cells,type:jsonb"`
}

// PGStore is a RowStore over Postgres via bun. It deliberately does not use
// transactions: the contract being emulated has none, and the allocator's
// snapshot validation is the only concurrency discipline.
type PGStore struct {
	db *bun.DB
}

func NewPGStore(db *bun.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) ReadAll(ctx context.Context, collection string) ([][]string, error) {
	var rows []SheetRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("collection = ?", collection).
		Order("pos ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = row.Cells
	}
	return out, nil
}

func (s *PGStore) ReadRow(ctx context.Context, collection string, pos int) ([]string, error) {
	row := new(SheetRow)
	err := s.db.NewSelect().
		Model(row).
		Where("collection = ? AND pos = ?", collection, pos).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRowNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.Cells, nil
}

func (s *PGStore) AppendRow(ctx context.Context, collection string, cells []string) (pos int, err error) {
	start := time.Now()
	defer func() { logger.LogQuery("append "+collection, time.Since(start), err) }()

	var maxPos sql.NullInt64
	err = s.db.NewSelect().
		Model((*SheetRow)(nil)).
		ColumnExpr("max(pos)").
		Where("collection = ?", collection).
		Scan(ctx, &maxPos)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	row := &SheetRow{
		Collection: collection,
		Pos:        int(maxPos.Int64) + 1,
		Cells:      cells,
	}
	if _, err = s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return 0, err
	}
	return row.Pos, nil
}

func (s *PGStore) DeleteRow(ctx context.Context, collection string, pos int) (err error) {
	start := time.Now()
	defer func() { logger.LogQuery("delete "+collection, time.Since(start), err) }()

	res, err := s.db.NewDelete().
		Model((*SheetRow)(nil)).
		Where("collection = ? AND pos = ?", collection, pos).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, affErr := res.RowsAffected(); affErr == nil && n == 0 {
		return ErrRowNotFound
	}

	// Close the gap so later rows shift up, matching spreadsheet semantics.
	_, err = s.db.NewUpdate().
		Model((*SheetRow)(nil)).
		Set("pos = pos - 1").
		Where("collection = ? AND pos > ?", collection, pos).
		Exec(ctx)
	return err
}

func (s *PGStore) UpdateCell(ctx context.Context, collection string, pos, col int, value string) error {
	cells, err := s.ReadRow(ctx, collection, pos)
	if err != nil {
		return err
	}
	for len(cells) <= col {
		cells = append(cells, "")
	}
	cells[col] = value

	_, err = s.db.NewUpdate().
		Model((*SheetRow)(nil)).
		Set("cells = ?", cells).
		Where("collection = ? AND pos = ?", collection, pos).
		Exec(ctx)
	return err
}
