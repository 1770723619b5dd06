package repository

import (
	"context"
	"database/sql"
	"errors"

	"foodnextdoor/internal/model"
	"foodnextdoor/internal/storage"
)

// CreateAccount 创建凭据
func (s *Store) CreateAccount(ctx context.Context, account *model.Account) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO accounts (id, email, password_hash, email_verified, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`),
		account.ID, account.Email, account.PasswordHash, account.EmailVerified,
		account.CreatedAt, account.UpdatedAt,
	)
	return s.wrapError(err)
}

// GetAccountByEmail 通过邮箱查找凭据，不存在返回 (nil, nil)
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	account, err := s.scanAccount(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, email, password_hash, email_verified, created_at, updated_at
		 FROM accounts WHERE email = $1`), email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return account, err
}

// GetAccountByID 通过 ID 查找凭据
func (s *Store) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	account, err := s.scanAccount(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, email, password_hash, email_verified, created_at, updated_at
		 FROM accounts WHERE id = $1`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return account, err
}

// UpdateAccountPassword 更新密码哈希
func (s *Store) UpdateAccountPassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE accounts SET password_hash = $1, updated_at = `+s.dialect.CurrentTimestamp()+` WHERE id = $2`),
		passwordHash, id,
	)
	if err != nil {
		return s.wrapError(err)
	}
	return requireRows(res)
}

// MarkEmailVerified 标记邮箱已验证
func (s *Store) MarkEmailVerified(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE accounts SET email_verified = $1, updated_at = `+s.dialect.CurrentTimestamp()+` WHERE id = $2`),
		true, id,
	)
	if err != nil {
		return s.wrapError(err)
	}
	return requireRows(res)
}

func (s *Store) scanAccount(row *sql.Row) (*model.Account, error) {
	account := &model.Account{}
	err := row.Scan(&account.ID, &account.Email, &account.PasswordHash,
		&account.EmailVerified, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// requireRows UPDATE 未命中任何行时返回 ErrNotFound
func requireRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
