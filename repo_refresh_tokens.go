package account

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var RevokeUserRefreshTokensSQL = `UPDATE "refresh_tokens" AS "rft"
SET
	"revoked" = TRUE,
	"revoked_at" = CURRENT_TIMESTAMP
WHERE
	"rft"."user_id" = ?
AND
	"rft"."revoked" = FALSE
RETURNING *;`

type RefreshTokens interface {
	repository.Repository[*RefreshToken]

	GetByToken(ctx context.Context, token string) (*RefreshToken, error)
	GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*RefreshToken, error)
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
	RevokeAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
}

type refreshTokens struct {
	repository.Repository[*RefreshToken]
	db *bun.DB
}

var (
	_ RefreshTokens                        = (*refreshTokens)(nil)
	_ repository.Repository[*RefreshToken] = (*refreshTokens)(nil)
)

func NewRefreshTokensRepository(db *bun.DB) RefreshTokens {
	repo := repository.NewRepository[*RefreshToken](db, repository.ModelHandlers[*RefreshToken]{
		NewRecord: func() *RefreshToken { return &RefreshToken{} },
		GetID: func(r *RefreshToken) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *RefreshToken, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &refreshTokens{
		Repository: repo,
		db:         db,
	}
}

func (a *refreshTokens) GetByToken(ctx context.Context, token string) (*RefreshToken, error) {
	return a.GetByTokenTx(ctx, a.db, token)
}

func (a *refreshTokens) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*RefreshToken, error) {
	record := &RefreshToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (a *refreshTokens) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	return a.RevokeAllForUserTx(ctx, a.db, userID)
}

func (a *refreshTokens) RevokeAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := a.Repository.RawTx(ctx, tx, RevokeUserRefreshTokensSQL, userID.String())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke refresh tokens")
	}
	return nil
}
