package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
)

var _ core.UserRepository = (*UserRepository)(nil)

// UserRepository implements core.UserRepository.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const insertUserQuery = `
	INSERT INTO users (email, password_hash, created_at)
	VALUES (?, ?, ?)
`

// Create inserts u and fills in its ID. A taken email is a conflict.
func (r *UserRepository) Create(ctx context.Context, u *core.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	res, err := GetExecutor(ctx, r.db).ExecContext(ctx, insertUserQuery, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.CategoryConflict, "users.create", apperrors.ErrEmailTaken)
		}
		return storageErr("users.create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storageErr("users.create", err)
	}
	u.ID = id
	return nil
}

const selectUserColumns = `SELECT id, email, password_hash, created_at FROM users`

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*core.User, error) {
	return r.get(ctx, "users.get_by_email", selectUserColumns+` WHERE email = ?`, email)
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*core.User, error) {
	return r.get(ctx, "users.get_by_id", selectUserColumns+` WHERE id = ?`, id)
}

func (r *UserRepository) get(ctx context.Context, op, query string, arg any) (*core.User, error) {
	var u core.User
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.CategoryNotFound, op, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr(op, err)
	}
	return &u, nil
}
