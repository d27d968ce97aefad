package repository

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/receipt-tax-tracker/backend/internal/models"
)

type PreferenceRepository struct {
	db *pgxpool.Pool
}

// NewPreferenceRepository создает репозиторий анкеты пользователя.
func NewPreferenceRepository(db *pgxpool.Pool) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Save обновляет профиль и сохраняет ответы анкеты одной транзакцией.
// Пользователь помечается как заполнивший анкету.
func (r *PreferenceRepository) Save(ctx context.Context, userID uuid.UUID, profile ProfileUpdate, answers map[string]string) (models.User, []models.UserPreference, error) {
	var user models.User

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return user, nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	user, err = updateProfileTx(ctx, tx, userID, profile)
	if err != nil {
		return user, nil, err
	}

	questions := make([]string, 0, len(answers))
	for question := range answers {
		questions = append(questions, question)
	}
	sort.Strings(questions)

	saved := make([]models.UserPreference, 0, len(questions))
	for _, question := range questions {
		var pref models.UserPreference
		err := tx.QueryRow(ctx,
			`INSERT INTO user_preferences (user_id, question, answer)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, question)
			 DO UPDATE SET answer = EXCLUDED.answer, updated_at = NOW()
			 RETURNING id, user_id, question, answer, updated_at`,
			userID, question, answers[question],
		).Scan(&pref.ID, &pref.UserID, &pref.Question, &pref.Answer, &pref.UpdatedAt)
		if err != nil {
			return user, nil, err
		}
		saved = append(saved, pref)
	}

	if err := tx.Commit(ctx); err != nil {
		return user, nil, err
	}

	return user, saved, nil
}

// List возвращает все ответы пользователя.
func (r *PreferenceRepository) List(ctx context.Context, userID uuid.UUID) ([]models.UserPreference, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, question, answer, updated_at
		 FROM user_preferences
		 WHERE user_id = $1
		 ORDER BY question`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prefs := make([]models.UserPreference, 0)
	for rows.Next() {
		var pref models.UserPreference
		if err := rows.Scan(&pref.ID, &pref.UserID, &pref.Question, &pref.Answer, &pref.UpdatedAt); err != nil {
			return nil, err
		}
		prefs = append(prefs, pref)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return prefs, nil
}
