package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
)

var _ core.Ledger = (*Ledger)(nil)

// Ledger implements core.Ledger over the transformations table. The
// UNIQUE(image_id, action, params) constraint makes the dedup key binding even
// for concurrent identical requests.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

const selectTransformationColumns = `
	SELECT id, image_id, action, params, locator, created_at
	FROM transformations
`

const findMatchingQuery = selectTransformationColumns + `
	WHERE image_id = ? AND action = ? AND params = ?
`

func (l *Ledger) FindMatching(ctx context.Context, imageID int64, action core.Action, params string) (*core.Transformation, bool, error) {
	t, err := scanTransformation(GetExecutor(ctx, l.db).QueryRowContext(ctx, findMatchingQuery, imageID, string(action), params))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr("ledger.find", err)
	}
	return t, true, nil
}

const insertTransformationQuery = `
	INSERT INTO transformations (image_id, action, params, locator, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (image_id, action, params) DO NOTHING
`

func (l *Ledger) Insert(ctx context.Context, t *core.Transformation) (bool, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	exec := GetExecutor(ctx, l.db)
	res, err := exec.ExecContext(ctx, insertTransformationQuery,
		t.ImageID, string(t.Action), t.Params, t.Locator, t.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, apperrors.New(apperrors.CategoryNotFound, "ledger.insert", apperrors.ErrNotFound)
		}
		return false, storageErr("ledger.insert", err)
	}

	if n, _ := res.RowsAffected(); n == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return false, storageErr("ledger.insert", err)
		}
		t.ID = id
		return true, nil
	}

	// Rows are immutable once written, so the winner can be read back
	// without holding a transaction.
	existing, err := scanTransformation(exec.QueryRowContext(ctx, findMatchingQuery, t.ImageID, string(t.Action), t.Params))
	if err != nil {
		return false, storageErr("ledger.insert", err)
	}
	*t = *existing
	return false, nil
}

const getTransformationQuery = selectTransformationColumns + `
	WHERE id = ? AND image_id = ?
`

// Get returns transformation id only when it belongs to imageID.
func (l *Ledger) Get(ctx context.Context, imageID, id int64) (*core.Transformation, error) {
	t, err := scanTransformation(GetExecutor(ctx, l.db).QueryRowContext(ctx, getTransformationQuery, id, imageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.CategoryNotFound, "ledger.get", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("ledger.get", err)
	}
	return t, nil
}

const listForImageQuery = selectTransformationColumns + `
	WHERE image_id = ?
	ORDER BY id
`

func (l *Ledger) ListForImage(ctx context.Context, imageID int64) ([]core.Transformation, error) {
	rows, err := GetExecutor(ctx, l.db).QueryContext(ctx, listForImageQuery, imageID)
	if err != nil {
		return nil, storageErr("ledger.list", err)
	}
	defer rows.Close()

	out := []core.Transformation{}
	for rows.Next() {
		t, err := scanTransformation(rows)
		if err != nil {
			return nil, storageErr("ledger.list", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("ledger.list", err)
	}
	return out, nil
}

const countForImageQuery = `SELECT COUNT(*) FROM transformations WHERE image_id = ?`

func (l *Ledger) CountForImage(ctx context.Context, imageID int64) (int, error) {
	var n int
	if err := GetExecutor(ctx, l.db).QueryRowContext(ctx, countForImageQuery, imageID).Scan(&n); err != nil {
		return 0, storageErr("ledger.count", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransformation(row rowScanner) (*core.Transformation, error) {
	var (
		t      core.Transformation
		action string
	)
	if err := row.Scan(&t.ID, &t.ImageID, &action, &t.Params, &t.Locator, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Action = core.Action(action)
	return &t, nil
}
