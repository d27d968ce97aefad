package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/receipt-tax-tracker/backend/internal/models"
)

// execer общий для пула и транзакции.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// RefreshTokenRepository хранит хэши refresh-токенов. Замененный токен
// остается в таблице с revoked_at и replaced_by, чтобы распознать повтор.
type RefreshTokenRepository struct {
	db *pgxpool.Pool
}

func NewRefreshTokenRepository(db *pgxpool.Pool) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token models.RefreshToken) error {
	return insertRefreshToken(ctx, r.db, token)
}

func (r *RefreshTokenRepository) GetByID(ctx context.Context, id uuid.UUID) (models.RefreshToken, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, token_hash, expires_at, created_at, revoked_at, replaced_by
		 FROM refresh_tokens WHERE id = $1`,
		id,
	)
	if err != nil {
		return models.RefreshToken{}, err
	}

	token, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (models.RefreshToken, error) {
		var t models.RefreshToken
		err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt, &t.RevokedAt, &t.ReplacedBy)
		return t, err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return token, ErrNotFound
	}
	return token, err
}

// Revoke отзывает активный токен. ErrNotFound, если токена нет или он уже отозван.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id uuid.UUID, replacedBy *uuid.UUID) error {
	return revokeRefreshToken(ctx, r.db, id, replacedBy)
}

// RevokeAllForUser закрывает все сессии пользователя.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = NOW()
		 WHERE user_id = $1 AND revoked_at IS NULL`,
		userID,
	)
	return tag.RowsAffected(), err
}

// Rotate в одной транзакции сохраняет новый токен и отзывает старый со
// ссылкой на замену. ErrNotFound, если старый уже отозван.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldID uuid.UUID, newToken models.RefreshToken) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := insertRefreshToken(ctx, tx, newToken); err != nil {
			return err
		}
		return revokeRefreshToken(ctx, tx, oldID, &newToken.ID)
	})
}

// DeleteExpired удаляет токены, истекшие до before. Пока токен не истек,
// запись хранится даже после отзыва.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	return tag.RowsAffected(), err
}

func insertRefreshToken(ctx context.Context, db execer, token models.RefreshToken) error {
	_, err := db.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at) VALUES ($1, $2, $3, $4)`,
		token.ID, token.UserID, token.TokenHash, token.ExpiresAt,
	)
	return err
}

func revokeRefreshToken(ctx context.Context, db execer, id uuid.UUID, replacedBy *uuid.UUID) error {
	tag, err := db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = NOW(), replaced_by = $2
		 WHERE id = $1 AND revoked_at IS NULL`,
		id, replacedBy,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
