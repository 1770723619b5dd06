package storage

import (
	"context"

	"foodnextdoor/internal/model"
)

// AccountStore 凭据存储接口（Credential Store 侧）
//
// 按 Email 查找在实体不存在时返回 (nil, nil)，
// 按 ID 的点查在实体不存在时返回 ErrNotFound。
type AccountStore interface {
	// CreateAccount 创建凭据，email 重复时返回 ErrDuplicate
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
	UpdateAccountPassword(ctx context.Context, id, passwordHash string) error
	MarkEmailVerified(ctx context.Context, id string) error
}

// ProfileStore 用户档案文档存储接口（Document Store 侧）
//
// Complete* 是合并写：只更新给定字段组 + username + profile_completed，
// 其余字段保持不变。username 的唯一性由存储层唯一约束保证，冲突时
// 返回 ErrDuplicate —— 写入本身即是唯一性的最终裁决，先查后写不再是竞态。
type ProfileStore interface {
	CreateProfile(ctx context.Context, profile *model.UserProfile) error
	GetProfile(ctx context.Context, id string) (*model.UserProfile, error)
	CompleteReceiverProfile(ctx context.Context, id, username string, fields *model.ReceiverProfile) error
	CompleteDonorProfile(ctx context.Context, id string, fields *model.DonorProfile) error
	// FindProfileByUsername username 等值查询，仅用于区分
	// "被他人占用"与"本就是自己的"，不存在时返回 (nil, nil)
	FindProfileByUsername(ctx context.Context, username string) (*model.UserProfile, error)
}

// ListingStore 食物分享信息存储接口
type ListingStore interface {
	CreateListing(ctx context.Context, listing *model.Listing) error
	GetListing(ctx context.Context, id string) (*model.Listing, error)
	// ListListings 按创建时间倒序返回，search 非空时按标题/描述子串过滤
	ListListings(ctx context.Context, search string, limit int) ([]*model.Listing, error)
}

// Store 持久化存储组合接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在子包中：mongostore/, repository/
//   - 初始化时通过依赖注入传入实现
type Store interface {
	AccountStore
	ProfileStore
	ListingStore
	Close() error
}
