// Package repository SQLite 集成测试
//
// 使用 SQLite 内存数据库验证 repository 层所有存储接口的正确性。
// 无需外部数据库依赖，可在任何环境下运行。
package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"foodnextdoor/internal/model"
	"foodnextdoor/internal/storage"
	"foodnextdoor/internal/storage/dbutil"
	sqlitedriver "foodnextdoor/internal/storage/driver/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Store = (*Store)(nil)

// newTestStore 创建用于测试的 SQLite 内存数据库 Store
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlitedriver.Open(":memory:")
	require.NoError(t, err)
	dialect := sqlitedriver.NewDialect()
	require.NoError(t, dialect.AutoMigrate(db))
	store := NewStore(db, dialect)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedProfile(t *testing.T, s *Store, id, email string, role model.Role) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.CreateProfile(context.Background(), &model.UserProfile{
		ID: id, Email: email, Role: role, CreatedAt: now, UpdatedAt: now,
	}))
}

// ============================================================================
// Dialect 基础测试
// ============================================================================

func TestDialectTypes(t *testing.T) {
	d := sqlitedriver.NewDialect()
	assert.Equal(t, dbutil.DriverSQLite, d.DriverType())
	assert.Equal(t, "datetime('now')", d.CurrentTimestamp())
}

func TestRebind(t *testing.T) {
	d := sqlitedriver.NewDialect()
	assert.Equal(t, "SELECT * FROM t WHERE id = ? AND name = ?",
		d.Rebind("SELECT * FROM t WHERE id = $1 AND name = $2"))
}

// ============================================================================
// Account 测试
// ============================================================================

func TestAccountCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	account := &model.Account{
		ID:           "acc-001",
		Email:        "a@x.com",
		PasswordHash: "$2a$12$hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.CreateAccount(ctx, account))

	// email 唯一约束
	err := s.CreateAccount(ctx, &model.Account{ID: "acc-002", Email: "a@x.com", PasswordHash: "h", CreatedAt: now, UpdatedAt: now})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	got, err := s.GetAccountByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "acc-001", got.ID)
	assert.False(t, got.EmailVerified)

	// 不存在的 email 返回 (nil, nil)
	got, err = s.GetAccountByEmail(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = s.GetAccountByID(ctx, "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.MarkEmailVerified(ctx, "acc-001"))
	got, err = s.GetAccountByID(ctx, "acc-001")
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)

	require.NoError(t, s.UpdateAccountPassword(ctx, "acc-001", "newhash"))
	got, _ = s.GetAccountByID(ctx, "acc-001")
	assert.Equal(t, "newhash", got.PasswordHash)

	assert.ErrorIs(t, s.UpdateAccountPassword(ctx, "ghost", "h"), storage.ErrNotFound)
}

// ============================================================================
// Profile 测试
// ============================================================================

func TestProfileCompletionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedProfile(t, s, "usr-001", "a@x.com", model.RoleReceiver)

	fields := &model.ReceiverProfile{
		FirstName: "Sam",
		LastName:  "Lee",
		Address:   "1 Main St",
		Phone:     "0400000000",
		Allergens: "peanuts",
	}
	require.NoError(t, s.CompleteReceiverProfile(ctx, "usr-001", "sam", fields))

	got, err := s.GetProfile(ctx, "usr-001")
	require.NoError(t, err)
	// 合并写保留创建时字段
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, model.RoleReceiver, got.Role)
	assert.True(t, got.ProfileCompleted)
	assert.Equal(t, "sam", got.Username)
	require.NotNil(t, got.Receiver)
	assert.Equal(t, *fields, *got.Receiver)
	assert.Nil(t, got.Donor)

	// 幂等：重复提交最终状态不变
	require.NoError(t, s.CompleteReceiverProfile(ctx, "usr-001", "sam", fields))
	again, err := s.GetProfile(ctx, "usr-001")
	require.NoError(t, err)
	assert.Equal(t, got.Username, again.Username)
	assert.Equal(t, *got.Receiver, *again.Receiver)
}

func TestUsernameUniqueAcrossProfiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedProfile(t, s, "usr-001", "a@x.com", model.RoleReceiver)
	seedProfile(t, s, "usr-002", "b@x.com", model.RoleReceiver)

	fields := &model.ReceiverProfile{FirstName: "A", LastName: "B", Address: "C", Phone: "1"}
	require.NoError(t, s.CompleteReceiverProfile(ctx, "usr-001", "sam", fields))

	// 其他身份写同名 username 被 UNIQUE 列拒绝
	err := s.CompleteReceiverProfile(ctx, "usr-002", "sam", fields)
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	// 自己的 username 重写不算冲突
	assert.NoError(t, s.CompleteReceiverProfile(ctx, "usr-001", "sam", fields))

	found, err := s.FindProfileByUsername(ctx, "sam")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "usr-001", found.ID)

	found, err = s.FindProfileByUsername(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestUncompletedProfilesShareNullUsername(t *testing.T) {
	s := newTestStore(t)

	// username 列允许多个 NULL：未补全档案不互相冲突
	seedProfile(t, s, "usr-001", "a@x.com", model.RoleReceiver)
	seedProfile(t, s, "usr-002", "b@x.com", model.RoleDonor)

	got, err := s.GetProfile(context.Background(), "usr-002")
	require.NoError(t, err)
	assert.Empty(t, got.Username)
	assert.False(t, got.ProfileCompleted)
}

func TestDonorCompletion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedProfile(t, s, "usr-003", "d@x.com", model.RoleDonor)

	fields := &model.DonorProfile{
		BusinessType: "Cafe",
		ABN:          "51824753556",
		ContactNo:    "0299999999",
		Address:      "2 High St",
		OpeningTime:  "08:00",
		ClosingTime:  "17:30",
	}
	require.NoError(t, s.CompleteDonorProfile(ctx, "usr-003", fields))

	got, err := s.GetProfile(ctx, "usr-003")
	require.NoError(t, err)
	require.NotNil(t, got.Donor)
	assert.Equal(t, *fields, *got.Donor)
	assert.Equal(t, "08:00 - 17:30", got.Donor.OpeningHours())
	assert.True(t, got.ProfileCompleted)
	assert.Nil(t, got.Receiver)

	assert.ErrorIs(t, s.CompleteDonorProfile(ctx, "ghost", fields), storage.ErrNotFound)
}

// ============================================================================
// Listing 测试
// ============================================================================

func TestListingFeed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	items := []*model.Listing{
		{ID: "lst-1", DonorID: "usr-1", Title: "Bread rolls", Description: "day-old sourdough", IsFree: true, CreatedAt: base.Add(-2 * time.Hour)},
		{ID: "lst-2", DonorID: "usr-1", Title: "Veggie curry", Description: "serves four", IsFree: true, CreatedAt: base.Add(-1 * time.Hour)},
		{ID: "lst-3", DonorID: "usr-2", Title: "Fruit box", Description: "mixed seasonal", CreatedAt: base},
	}
	for _, l := range items {
		require.NoError(t, s.CreateListing(ctx, l))
	}

	got, err := s.ListListings(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "lst-3", got[0].ID)
	assert.Equal(t, "lst-1", got[2].ID)

	got, err = s.ListListings(ctx, "CURRY", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "lst-2", got[0].ID)

	// 命中 description 列
	got, err = s.ListListings(ctx, "seasonal", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "lst-3", got[0].ID)

	// 同一模式匹配不同行的不同列
	got, err = s.ListListings(ctx, "s", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = s.ListListings(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	one, err := s.GetListing(ctx, "lst-1")
	require.NoError(t, err)
	assert.True(t, one.IsFree)
	assert.True(t, one.ExpiresAt.IsZero())

	_, err = s.GetListing(ctx, "ghost")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
