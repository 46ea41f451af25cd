package account

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var SetUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var SoftDisableUserSQL = `UPDATE "users" AS "usr"
SET
	"deleted_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var HardDeleteUserSQL = `DELETE FROM "users"
WHERE
	"id" = ?
RETURNING *;`

// Login identity columns accepted by GetByLoginField.
const (
	LoginFieldEmail          = "email"
	LoginFieldUsername       = "username"
	LoginFieldSecondaryEmail = "secondary_email"
)

type Users interface {
	repository.Repository[*User]

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	GetByLoginField(ctx context.Context, field, value string) (*User, error)
	GetByLoginFieldTx(ctx context.Context, tx bun.IDB, field, value string) (*User, error)
	GetByAnyEmail(ctx context.Context, email string) (*User, error)
	GetByAnyEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	EmailInUse(ctx context.Context, email string) (bool, error)
	EmailInUseTx(ctx context.Context, tx bun.IDB, email string) (bool, error)

	SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
	SoftDisableTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	HardDeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error
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
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	return a.CreateTx(ctx, tx, user)
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

// GetByLoginField resolves a user by one configured identity column. The
// secondary email column lives on account_status, so that lookup joins it in.
func (a *users) GetByLoginField(ctx context.Context, field, value string) (*User, error) {
	return a.GetByLoginFieldTx(ctx, a.db, field, value)
}

func (a *users) GetByLoginFieldTx(ctx context.Context, tx bun.IDB, field, value string) (*User, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, repository.NewRecordNotFound()
	}

	record := &User{}
	q := tx.NewSelect().Model(record).Relation("Status")

	switch field {
	case LoginFieldEmail:
		q = q.Where("?TableAlias.email = ?", value)
	case LoginFieldUsername:
		q = q.Where("?TableAlias.username = ?", value)
	case LoginFieldSecondaryEmail:
		q = q.
			Join(`JOIN "account_status" AS "sec" ON "sec"."user_id" = ?TableAlias."id"`).
			Where(`"sec"."secondary_email" = ?`, value)
	default:
		return nil, ErrWrongUsage.Clone().WithMetadata(map[string]any{
			"reason": "unknown login field",
			"field":  field,
		})
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
				"field": field,
			})
		}
		return nil, err
	}

	return record, nil
}

// GetByAnyEmail resolves a user by primary or secondary email.
func (a *users) GetByAnyEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByAnyEmailTx(ctx, a.db, email)
}

func (a *users) GetByAnyEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, repository.NewRecordNotFound()
	}

	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Relation("Status").
		Join(`LEFT JOIN "account_status" AS "sec" ON "sec"."user_id" = ?TableAlias."id"`).
		Where(`?TableAlias."email" = ? OR "sec"."secondary_email" = ?`, email, email).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
				"email": email,
			})
		}
		return nil, err
	}

	return record, nil
}

// EmailInUse reports whether email is someone's primary or secondary email.
func (a *users) EmailInUse(ctx context.Context, email string) (bool, error) {
	return a.EmailInUseTx(ctx, a.db, email)
}

func (a *users) EmailInUseTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	_, err := a.GetByAnyEmailTx(ctx, tx, email)
	if err == nil {
		return true, nil
	}
	if repository.IsRecordNotFound(err) {
		return false, nil
	}
	return false, err
}

func (a *users) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.SetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, SetUserPasswordSQL, passwordHash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().WithMetadata(map[string]any{
			"id": id.String(),
		})
	}

	return nil
}

func (a *users) SoftDisableTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := a.Repository.RawTx(ctx, tx, SoftDisableUserSQL, id.String())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to disable user")
	}
	return nil
}

func (a *users) HardDeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := a.Repository.RawTx(ctx, tx, HardDeleteUserSQL, id.String())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete user")
	}
	return nil
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, user)
}

func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	loggedInAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"loggedin_at" = ?
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, loggedInAt, user.ID).Exec(ctx)

	return err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Username == "" && strings.Contains(record.Email, "@") {
		record.Username = strings.Split(record.Email, "@")[0]
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
