package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
)

var _ core.ImageRepository = (*ImageRepository)(nil)

// ImageRepository implements core.ImageRepository. Every read and delete is
// filtered by owner, so foreign rows look exactly like missing ones.
type ImageRepository struct {
	db *sql.DB
}

func NewImageRepository(db *sql.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

const insertImageQuery = `
	INSERT INTO images (filename, locator, user_id, created_at)
	VALUES (?, ?, ?, ?)
`

func (r *ImageRepository) Create(ctx context.Context, img *core.Image) error {
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}
	res, err := GetExecutor(ctx, r.db).ExecContext(ctx, insertImageQuery,
		img.Filename, img.Locator, img.UserID, img.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperrors.Newf(apperrors.CategoryNotFound, "images.create", "user %d: %w", img.UserID, apperrors.ErrNotFound)
		}
		return storageErr("images.create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storageErr("images.create", err)
	}
	img.ID = id
	return nil
}

const getImageQuery = `
	SELECT id, filename, locator, user_id, created_at
	FROM images
	WHERE id = ? AND user_id = ?
`

func (r *ImageRepository) Get(ctx context.Context, id, ownerID int64) (*core.Image, error) {
	var img core.Image
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, getImageQuery, id, ownerID).
		Scan(&img.ID, &img.Filename, &img.Locator, &img.UserID, &img.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.CategoryNotFound, "images.get", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("images.get", err)
	}
	return &img, nil
}

const countImagesQuery = `SELECT COUNT(*) FROM images WHERE user_id = ?`

const listImagesQuery = `
	SELECT i.id, i.filename, i.created_at, COUNT(t.id)
	FROM images i
	LEFT JOIN transformations t ON t.image_id = i.id
	WHERE i.user_id = ?
	GROUP BY i.id
	ORDER BY i.id
	LIMIT ? OFFSET ?
`

// List returns one page of the owner's images in id order together with the
// owner's total image count.
func (r *ImageRepository) List(ctx context.Context, ownerID int64, offset, limit int) ([]core.ImageSummary, int, error) {
	var (
		total int
		items []core.ImageSummary
	)
	err := RunInTransaction(ctx, r.db, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, r.db)
		if err := exec.QueryRowContext(txCtx, countImagesQuery, ownerID).Scan(&total); err != nil {
			return err
		}

		rows, err := exec.QueryContext(txCtx, listImagesQuery, ownerID, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()

		// limit comes from the client; total bounds what a page can hold.
		items = make([]core.ImageSummary, 0, min(limit, total))
		for rows.Next() {
			var s core.ImageSummary
			if err := rows.Scan(&s.ID, &s.Filename, &s.CreatedAt, &s.TransformationCount); err != nil {
				return err
			}
			items = append(items, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, storageErr("images.list", err)
	}
	return items, total, nil
}

const imageLocatorsQuery = `
	SELECT locator FROM images WHERE id = ? AND user_id = ?
	UNION ALL
	SELECT t.locator FROM transformations t
	JOIN images i ON i.id = t.image_id
	WHERE i.id = ? AND i.user_id = ?
`

const deleteImageQuery = `DELETE FROM images WHERE id = ? AND user_id = ?`

// Delete removes the image; its transformations go with it through the
// foreign key cascade. The returned locators are the blobs that were
// referenced by the deleted rows.
func (r *ImageRepository) Delete(ctx context.Context, id, ownerID int64) ([]string, error) {
	var locators []string
	err := RunInTransaction(ctx, r.db, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, r.db)
		rows, err := exec.QueryContext(txCtx, imageLocatorsQuery, id, ownerID, id, ownerID)
		if err != nil {
			return storageErr("images.delete", err)
		}
		for rows.Next() {
			var loc string
			if err := rows.Scan(&loc); err != nil {
				rows.Close()
				return storageErr("images.delete", err)
			}
			locators = append(locators, loc)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return storageErr("images.delete", err)
		}

		res, err := exec.ExecContext(txCtx, deleteImageQuery, id, ownerID)
		if err != nil {
			return storageErr("images.delete", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.New(apperrors.CategoryNotFound, "images.delete", apperrors.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return locators, nil
}
