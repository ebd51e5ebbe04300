package repositories

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/studcom-mm/washbot/washbot/database/models"
)

// ErrUserNotFound is returned by point lookups for unknown accounts.
var ErrUserNotFound = errors.New("repositories: user not found")

type UserRepository interface {
	GetByAccountID(ctx context.Context, accountID string) (*models.User, error)
	Upsert(ctx context.Context, user *models.User) error
	SetEmail(ctx context.Context, accountID, email, status string) error
	CompleteRegistration(ctx context.Context, accountID string) error
	IsBlocked(ctx context.Context, accountID string) (bool, error)
	EmailTakenByOther(ctx context.Context, email, accountID string) (bool, error)
}

type userRepository struct {
	db *bun.DB
}

func NewUserRepository(db *bun.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByAccountID(ctx context.Context, accountID string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("account_id = ?", accountID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		slog.Error("Database error when getting user",
			slog.String("type", "db"),
			slog.String("operation", "GetByAccountID"),
			slog.String("account_id", accountID),
			slog.String("error", err.Error()))
		return nil, err
	}
	return user, nil
}

// Upsert inserts the user or, when the account already exists, overwrites the
// registration fields. Registration restarts go through here.
func (r *userRepository) Upsert(ctx context.Context, user *models.User) error {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(user).
		On("CONFLICT (account_id) DO UPDATE").
		Set("username = EXCLUDED.username").
		Set("surname = EXCLUDED.surname").
		Set("first_name = EXCLUDED.first_name").
		Set("patronymic = EXCLUDED.patronymic").
		Set("date_of_birth = EXCLUDED.date_of_birth").
		Set("room = EXCLUDED.room").
		Set("email_status = EXCLUDED.email_status").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (r *userRepository) SetEmail(ctx context.Context, accountID, email, status string) error {
	_, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("email = ?", email).
		Set("email_status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("account_id = ?", accountID).
		Exec(ctx)
	return err
}

func (r *userRepository) CompleteRegistration(ctx context.Context, accountID string) error {
	_, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("rules_acknowledged = ?", true).
		Set("status = ?", models.UserStatusOK).
		Set("updated_at = ?", time.Now()).
		Where("account_id = ?", accountID).
		Exec(ctx)
	return err
}

// IsBlocked is looked up fresh on every conversation input; an unknown user
// is not blocked.
func (r *userRepository) IsBlocked(ctx context.Context, accountID string) (bool, error) {
	var status string
	err := r.db.NewSelect().
		Model((*models.User)(nil)).
		Column("status").
		Where("account_id = ?", accountID).
		Scan(ctx, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status == models.UserStatusBlocked, nil
}

// EmailTakenByOther reports whether the email is already Confirmed on a
// different account.
func (r *userRepository) EmailTakenByOther(ctx context.Context, email, accountID string) (bool, error) {
	count, err := r.db.NewSelect().
		Model((*models.User)(nil)).
		Where("email = ?", email).
		Where("email_status = ?", models.EmailStatusConfirmed).
		Where("account_id != ?", accountID).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
