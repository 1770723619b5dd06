package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"foodnextdoor/internal/model"
)

// MemStore 内存版 Store 实现，用于测试
//
// 语义与真实驱动一致：email/username 唯一约束、合并写、
// 点查不存在返回 ErrNotFound。
type MemStore struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account
	profiles map[string]*model.UserProfile
	listings map[string]*model.Listing
}

var _ Store = (*MemStore)(nil)

// NewMemStore 创建内存存储实例
func NewMemStore() *MemStore {
	return &MemStore{
		accounts: make(map[string]*model.Account),
		profiles: make(map[string]*model.UserProfile),
		listings: make(map[string]*model.Listing),
	}
}

// Close 关闭存储（内存实现为空操作）
func (s *MemStore) Close() error { return nil }

// ============================================================================
// AccountStore
// ============================================================================

func (s *MemStore) CreateAccount(_ context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.ID]; ok {
		return ErrDuplicate
	}
	for _, a := range s.accounts {
		if a.Email == account.Email {
			return ErrDuplicate
		}
	}
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

func (s *MemStore) GetAccountByEmail(_ context.Context, email string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemStore) GetAccountByID(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemStore) UpdateAccountPassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = passwordHash
	return nil
}

func (s *MemStore) MarkEmailVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.EmailVerified = true
	return nil
}

// ============================================================================
// ProfileStore
// ============================================================================

func (s *MemStore) CreateProfile(_ context.Context, profile *model.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[profile.ID]; ok {
		return ErrDuplicate
	}
	cp := *profile
	s.profiles[profile.ID] = &cp
	return nil
}

func (s *MemStore) GetProfile(_ context.Context, id string) (*model.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemStore) CompleteReceiverProfile(_ context.Context, id, username string, fields *model.ReceiverProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return ErrNotFound
	}
	// 唯一约束：username 被其他身份占用时写入失败
	for otherID, other := range s.profiles {
		if otherID != id && other.Username == username {
			return ErrDuplicate
		}
	}
	cp := *fields
	p.Username = username
	p.Receiver = &cp
	p.ProfileCompleted = true
	return nil
}

func (s *MemStore) CompleteDonorProfile(_ context.Context, id string, fields *model.DonorProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return ErrNotFound
	}
	cp := *fields
	p.Donor = &cp
	p.ProfileCompleted = true
	return nil
}

func (s *MemStore) FindProfileByUsername(_ context.Context, username string) (*model.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.Username != "" && p.Username == username {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

// ============================================================================
// ListingStore
// ============================================================================

func (s *MemStore) CreateListing(_ context.Context, listing *model.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[listing.ID]; ok {
		return ErrDuplicate
	}
	cp := *listing
	s.listings[listing.ID] = &cp
	return nil
}

func (s *MemStore) GetListing(_ context.Context, id string) (*model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *MemStore) ListListings(_ context.Context, search string, limit int) ([]*model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := []*model.Listing{}
	needle := strings.ToLower(search)
	for _, l := range s.listings {
		if needle != "" &&
			!strings.Contains(strings.ToLower(l.Title), needle) &&
			!strings.Contains(strings.ToLower(l.Description), needle) {
			continue
		}
		cp := *l
		results = append(results, &cp)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
