package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/patrickmn/go-cache"

	"example.com/receipt-tax-tracker/backend/internal/models"
)

const deductibilityTypesKey = "deductibility_types"

type ReferenceRepository struct {
	db    *pgxpool.Pool
	cache *cache.Cache
}

// NewReferenceRepository создает репозиторий справочников.
// Типы вычетов кешируются на ttl.
func NewReferenceRepository(db *pgxpool.Pool, ttl time.Duration) *ReferenceRepository {
	return &ReferenceRepository{
		db:    db,
		cache: cache.New(ttl, 2*ttl),
	}
}

// DeductibilityTypes возвращает типы вычетов в каноническом порядке.
func (r *ReferenceRepository) DeductibilityTypes(ctx context.Context) ([]models.DeductibilityType, error) {
	if cached, found := r.cache.Get(deductibilityTypesKey); found {
		if types, ok := cached.([]models.DeductibilityType); ok {
			return types, nil
		}
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, name, sort_order
		 FROM deductibility_types
		 ORDER BY sort_order, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := make([]models.DeductibilityType, 0)
	for rows.Next() {
		var t models.DeductibilityType
		if err := rows.Scan(&t.ID, &t.Name, &t.SortOrder); err != nil {
			return nil, err
		}
		types = append(types, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.cache.Set(deductibilityTypesKey, types, cache.DefaultExpiration)
	return types, nil
}

// Vendors возвращает всех продавцов по имени.
func (r *ReferenceRepository) Vendors(ctx context.Context) ([]models.Vendor, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, address FROM vendors ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vendors := make([]models.Vendor, 0)
	for rows.Next() {
		var vendor models.Vendor
		if err := rows.Scan(&vendor.ID, &vendor.Name, &vendor.Address); err != nil {
			return nil, err
		}
		vendors = append(vendors, vendor)
	}

	return vendors, rows.Err()
}

// Categories возвращает общие категории и категории пользователя.
func (r *ReferenceRepository) Categories(ctx context.Context, userID uuid.UUID) ([]models.ExpenseCategory, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, name
		 FROM expense_categories
		 WHERE user_id IS NULL OR user_id = $1
		 ORDER BY name, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]models.ExpenseCategory, 0)
	for rows.Next() {
		var category models.ExpenseCategory
		if err := rows.Scan(&category.ID, &category.UserID, &category.Name); err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}

	return categories, rows.Err()
}

// PaymentMethods возвращает способы оплаты пользователя.
func (r *ReferenceRepository) PaymentMethods(ctx context.Context, userID uuid.UUID) ([]models.PaymentMethod, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, name
		 FROM payment_methods
		 WHERE user_id = $1
		 ORDER BY name, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	methods := make([]models.PaymentMethod, 0)
	for rows.Next() {
		var method models.PaymentMethod
		if err := rows.Scan(&method.ID, &method.UserID, &method.Name); err != nil {
			return nil, err
		}
		methods = append(methods, method)
	}

	return methods, rows.Err()
}

func findOrCreateVendor(ctx context.Context, tx pgx.Tx, name string, address *string) (int64, error) {
	name = strings.TrimSpace(name)

	var id int64
	err := tx.QueryRow(ctx,
		`SELECT id FROM vendors WHERE lower(name) = lower($1) ORDER BY id LIMIT 1`,
		name,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO vendors (name, address) VALUES ($1, $2) RETURNING id`,
		name, address,
	).Scan(&id)
	return id, err
}

func findOrCreatePaymentMethod(ctx context.Context, tx pgx.Tx, userID uuid.UUID, name string) (int64, error) {
	name = strings.TrimSpace(name)

	var id int64
	err := tx.QueryRow(ctx,
		`SELECT id FROM payment_methods
		 WHERE user_id = $1 AND lower(name) = lower($2)
		 ORDER BY id LIMIT 1`,
		userID, name,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO payment_methods (user_id, name) VALUES ($1, $2) RETURNING id`,
		userID, name,
	).Scan(&id)
	return id, err
}

// findOrCreateCategory ищет сначала среди категорий пользователя, затем среди общих.
func findOrCreateCategory(ctx context.Context, tx pgx.Tx, userID uuid.UUID, name string) (int64, error) {
	name = strings.TrimSpace(name)

	var id int64
	err := tx.QueryRow(ctx,
		`SELECT id FROM expense_categories
		 WHERE (user_id = $1 OR user_id IS NULL) AND lower(name) = lower($2)
		 ORDER BY user_id NULLS LAST, id
		 LIMIT 1`,
		userID, name,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO expense_categories (user_id, name) VALUES ($1, $2) RETURNING id`,
		userID, name,
	).Scan(&id)
	return id, err
}
