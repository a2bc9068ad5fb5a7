package accounts

import (
	"context"
	"database/sql"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserPatch carries the mutable profile fields. Nil means "leave as is".
type UserPatch struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Username == nil && p.Email == nil && p.Password == nil
}

// Users is the account directory. Username and email are unique case
// insensitively; the uniqueness pre-checks here are backed by unique indexes
// on LOWER(username)/LOWER(email) so concurrent duplicates still resolve to
// exactly one success.
type Users interface {
	repository.Repository[*User]

	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	FindOneByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindOneByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	FindOneByUsername(ctx context.Context, username string) (*User, error)
	FindOneByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error)
	FindOneByEmail(ctx context.Context, email string) (*User, error)
	FindOneByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)

	UpdateByUsername(ctx context.Context, username string, patch UserPatch) (*User, error)
	UpdateByUsernameTx(ctx context.Context, tx bun.IDB, username string, patch UserPatch) (*User, error)

	SetFeatures(ctx context.Context, id uuid.UUID, features []Feature) (*User, error)
	SetFeaturesTx(ctx context.Context, tx bun.IDB, id uuid.UUID, features []Feature) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

// CreateTx validates input, enforces case-insensitive uniqueness, hashes the
// cleartext password carried in record.Password and assigns the default
// feature set.
func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	if err := prepareNewUser(record); err != nil {
		return nil, err
	}

	if err := a.ensureUniqueTx(ctx, tx, record.Username, record.Email, uuid.Nil); err != nil {
		return nil, err
	}

	if _, err := tx.NewInsert().Model(record).Returning("*").Exec(ctx); err != nil {
		if taken := uniqueViolationError(err); taken != nil {
			return nil, taken
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to insert user")
	}

	return record, nil
}

func (a *users) FindOneByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.FindOneByIDTx(ctx, a.db, id)
}

func (a *users) FindOneByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	record := &User{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	return record, wrapUserLookupErr(err, map[string]any{"id": id.String()})
}

func (a *users) FindOneByUsername(ctx context.Context, username string) (*User, error) {
	return a.FindOneByUsernameTx(ctx, a.db, username)
}

func (a *users) FindOneByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().Model(record).
		Where("LOWER(?TableAlias.username) = LOWER(?)", username).
		Limit(1).
		Scan(ctx)
	return record, wrapUserLookupErr(err, map[string]any{"username": username})
}

func (a *users) FindOneByEmail(ctx context.Context, email string) (*User, error) {
	return a.FindOneByEmailTx(ctx, a.db, email)
}

func (a *users) FindOneByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().Model(record).
		Where("LOWER(?TableAlias.email) = LOWER(?)", email).
		Limit(1).
		Scan(ctx)
	return record, wrapUserLookupErr(err, map[string]any{"email": email})
}

func (a *users) UpdateByUsername(ctx context.Context, username string, patch UserPatch) (*User, error) {
	return a.UpdateByUsernameTx(ctx, a.db, username, patch)
}

// UpdateByUsernameTx applies a partial profile update. Username/email changes
// re-check uniqueness excluding the current row; a new password is re-hashed
// before persisting; updated_at always moves forward.
func (a *users) UpdateByUsernameTx(ctx context.Context, tx bun.IDB, username string, patch UserPatch) (*User, error) {
	record, err := a.FindOneByUsernameTx(ctx, tx, username)
	if err != nil {
		return nil, err
	}

	if patch.Username != nil {
		record.Username = *patch.Username
	}
	if patch.Email != nil {
		record.Email = *patch.Email
	}

	if err := a.ensureUniqueTx(ctx, tx, record.Username, record.Email, record.ID); err != nil {
		return nil, err
	}

	if patch.Password != nil {
		hash, err := HashPassword(*patch.Password)
		if err != nil {
			return nil, err
		}
		record.Password = hash
	}

	now := time.Now()
	record.UpdatedAt = &now

	_, err = tx.NewUpdate().Model(record).
		Column("username", "email", "password", "updated_at").
		WherePK().
		Returning("*").
		Exec(ctx)
	if err != nil {
		if taken := uniqueViolationError(err); taken != nil {
			return nil, taken
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user")
	}

	return record, nil
}

func (a *users) SetFeatures(ctx context.Context, id uuid.UUID, features []Feature) (*User, error) {
	return a.SetFeaturesTx(ctx, a.db, id, features)
}

// SetFeaturesTx replaces the feature set wholesale. Used by the activation
// flow, which is a one-way transition.
func (a *users) SetFeaturesTx(ctx context.Context, tx bun.IDB, id uuid.UUID, features []Feature) (*User, error) {
	record, err := a.FindOneByIDTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record.Features = features
	record.UpdatedAt = &now

	if _, err := tx.NewUpdate().Model(record).
		Column("features", "updated_at").
		WherePK().
		Returning("*").
		Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to replace user features")
	}

	return record, nil
}

// ensureUniqueTx is the application level pre-check; the unique indexes on
// LOWER(username)/LOWER(email) remain the authority under concurrency.
func (a *users) ensureUniqueTx(ctx context.Context, tx bun.IDB, username, email string, exclude uuid.UUID) error {
	taken, err := a.identifierTakenTx(ctx, tx, "username", username, exclude)
	if err != nil {
		return err
	}
	if taken {
		return ErrUsernameTaken
	}

	taken, err = a.identifierTakenTx(ctx, tx, "email", email, exclude)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}

	return nil
}

func (a *users) identifierTakenTx(ctx context.Context, tx bun.IDB, column, value string, exclude uuid.UUID) (bool, error) {
	q := tx.NewSelect().Model((*User)(nil)).
		Where("LOWER(?TableAlias."+column+") = LOWER(?)", value)

	if exclude != uuid.Nil {
		q = q.Where("?TableAlias.id != ?", exclude)
	}

	count, err := q.Count(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check "+column+" uniqueness")
	}

	return count > 0, nil
}

func prepareNewUser(record *User) error {
	if record == nil {
		return goerrors.New("user record is required", goerrors.CategoryBadInput)
	}

	hash, err := HashPassword(record.Password)
	if err != nil {
		return err
	}
	record.Password = hash

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if len(record.Features) == 0 {
		record.Features = DefaultUserFeatures()
	}

	return nil
}

func wrapUserLookupErr(err error, meta map[string]any) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return sentinelWithMeta(ErrUserNotFound, meta)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "user lookup failed")
}

// uniqueViolationError maps a storage level unique constraint failure to the
// Validation error naming the colliding field. This is the backstop that
// closes the pre-check race under concurrent inserts.
func uniqueViolationError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") &&
		!strings.Contains(msg, "duplicate key value") {
		return nil
	}

	if strings.Contains(msg, "email") {
		return ErrEmailTaken
	}

	return ErrUsernameTaken
}
