package mongostore

import (
	"context"
	"time"

	"foodnextdoor/internal/model"
	"foodnextdoor/internal/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ============================================================================
// ProfileStore
// ============================================================================

func (s *Store) CreateProfile(ctx context.Context, profile *model.UserProfile) error {
	return insertOne(ctx, s.col(ColProfiles), profile)
}

func (s *Store) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	profile, err := findOne[model.UserProfile](ctx, s.col(ColProfiles), bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, storage.ErrNotFound
	}
	return profile, nil
}

// CompleteReceiverProfile 合并写接收方字段组 + username + profile_completed
//
// 单次 $set 即整个补全步骤：username 冲突由 sparse unique 索引在写入时
// 拒绝（ErrDuplicate），两个并发补全同名 username 时至多一个成功。
func (s *Store) CompleteReceiverProfile(ctx context.Context, id, username string, fields *model.ReceiverProfile) error {
	return updateFields(ctx, s.col(ColProfiles), id, bson.D{
		{Key: "username", Value: username},
		{Key: "receiver", Value: fields},
		{Key: "profile_completed", Value: true},
		{Key: "updated_at", Value: time.Now()},
	})
}

// CompleteDonorProfile 合并写捐赠方字段组 + profile_completed（无唯一性约束）
func (s *Store) CompleteDonorProfile(ctx context.Context, id string, fields *model.DonorProfile) error {
	return updateFields(ctx, s.col(ColProfiles), id, bson.D{
		{Key: "donor", Value: fields},
		{Key: "profile_completed", Value: true},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) FindProfileByUsername(ctx context.Context, username string) (*model.UserProfile, error) {
	return findOne[model.UserProfile](ctx, s.col(ColProfiles), bson.D{{Key: "username", Value: username}})
}
