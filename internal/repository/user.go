package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/receipt-tax-tracker/backend/internal/models"
)

const userColumns = `id, email, password_hash, name, nric, phone_number, tin, data_filled, created_at, updated_at`

type UserRepository struct {
	db *pgxpool.Pool
}

// ProfileUpdate содержит поля профиля, которые меняются вместе с анкетой.
// nil означает, что поле не трогаем.
type ProfileUpdate struct {
	Name        *string
	NRIC        *string
	PhoneNumber *string
	TIN         *string
}

// NewUserRepository создает репозиторий пользователей.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Create создает пользователя в базе.
func (r *UserRepository) Create(ctx context.Context, email, passwordHash string, name *string) (models.User, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, name)
		 VALUES ($1, $2, $3)
		 RETURNING `+userColumns,
		email, passwordHash, name,
	)

	user, err := scanUser(row)
	if err != nil {
		return user, mapWriteError(err, -1)
	}
	return user, nil
}

// GetByEmail возвращает пользователя по email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (models.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUserOrNotFound(row)
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUserOrNotFound(row)
}

func updateProfileTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, profile ProfileUpdate) (models.User, error) {
	row := tx.QueryRow(ctx,
		`UPDATE users
		 SET name = COALESCE($2, name),
		     nric = COALESCE($3, nric),
		     phone_number = COALESCE($4, phone_number),
		     tin = COALESCE($5, tin),
		     data_filled = TRUE,
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+userColumns,
		userID, profile.Name, profile.NRIC, profile.PhoneNumber, profile.TIN,
	)
	return scanUserOrNotFound(row)
}

func scanUserOrNotFound(row pgx.Row) (models.User, error) {
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user, ErrNotFound
		}
		return user, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.NRIC,
		&user.PhoneNumber,
		&user.TIN,
		&user.DataFilled,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}
