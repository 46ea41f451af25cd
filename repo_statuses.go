package account

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Statuses interface {
	repository.Repository[*AccountStatus]

	GetByUserID(ctx context.Context, userID uuid.UUID) (*AccountStatus, error)
	GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*AccountStatus, error)
}

type statuses struct {
	repository.Repository[*AccountStatus]
	db *bun.DB
}

var (
	_ Statuses                              = (*statuses)(nil)
	_ repository.Repository[*AccountStatus] = (*statuses)(nil)
)

func NewStatusesRepository(db *bun.DB) Statuses {
	repo := repository.NewRepository[*AccountStatus](db, repository.ModelHandlers[*AccountStatus]{
		NewRecord: func() *AccountStatus { return &AccountStatus{} },
		GetID: func(s *AccountStatus) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *AccountStatus, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
	})

	return &statuses{
		Repository: repo,
		db:         db,
	}
}

func (a *statuses) GetByUserID(ctx context.Context, userID uuid.UUID) (*AccountStatus, error) {
	return a.GetByUserIDTx(ctx, a.db, userID)
}

func (a *statuses) GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*AccountStatus, error) {
	record := &AccountStatus{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
				"user_id": userID.String(),
			})
		}
		return nil, err
	}

	return record, nil
}
