package mongostore

import (
	"context"
	"time"

	"foodnextdoor/internal/model"
	"foodnextdoor/internal/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ============================================================================
// AccountStore
// ============================================================================

func (s *Store) CreateAccount(ctx context.Context, account *model.Account) error {
	return insertOne(ctx, s.col(ColAccounts), account)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return findOne[model.Account](ctx, s.col(ColAccounts), bson.D{{Key: "email", Value: email}})
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	account, err := findOne[model.Account](ctx, s.col(ColAccounts), bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, storage.ErrNotFound
	}
	return account, nil
}

func (s *Store) UpdateAccountPassword(ctx context.Context, id, passwordHash string) error {
	return updateFields(ctx, s.col(ColAccounts), id, bson.D{
		{Key: "password_hash", Value: passwordHash},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) MarkEmailVerified(ctx context.Context, id string) error {
	return updateFields(ctx, s.col(ColAccounts), id, bson.D{
		{Key: "email_verified", Value: true},
		{Key: "updated_at", Value: time.Now()},
	})
}
