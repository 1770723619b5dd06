package repository

import (
	"context"
	"database/sql"
	"errors"

	"foodnextdoor/internal/model"
	"foodnextdoor/internal/storage"
)

const profileColumns = `id, email, role, username, profile_completed, receiver, donor, stats, created_at, updated_at`

// CreateProfile 创建初始档案文档
func (s *Store) CreateProfile(ctx context.Context, profile *model.UserProfile) error {
	receiver, err := marshalJSON(profile.Receiver)
	if err != nil {
		return err
	}
	donor, err := marshalJSON(profile.Donor)
	if err != nil {
		return err
	}
	stats, err := marshalJSON(profile.Stats)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`),
		profile.ID, profile.Email, string(profile.Role), nullable(profile.Username),
		profile.ProfileCompleted, receiver, donor, stats,
		profile.CreatedAt, profile.UpdatedAt,
	)
	return s.wrapError(err)
}

// GetProfile 点查档案，不存在返回 ErrNotFound
func (s *Store) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	profile, err := s.scanProfile(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return profile, err
}

// CompleteReceiverProfile 接收方档案补全：单条 UPDATE 合并写
// username 的 UNIQUE 列在写入时裁决唯一性，并发同名补全至多一个成功
func (s *Store) CompleteReceiverProfile(ctx context.Context, id, username string, fields *model.ReceiverProfile) error {
	receiver, err := marshalJSON(fields)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE profiles
		 SET username = $1, receiver = $2, profile_completed = $3, updated_at = `+s.dialect.CurrentTimestamp()+`
		 WHERE id = $4`),
		nullable(username), receiver, true, id,
	)
	if err != nil {
		return s.wrapError(err)
	}
	return requireRows(res)
}

// CompleteDonorProfile 捐赠方档案补全，无唯一性约束
func (s *Store) CompleteDonorProfile(ctx context.Context, id string, fields *model.DonorProfile) error {
	donor, err := marshalJSON(fields)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE profiles
		 SET donor = $1, profile_completed = $2, updated_at = `+s.dialect.CurrentTimestamp()+`
		 WHERE id = $3`),
		donor, true, id,
	)
	if err != nil {
		return s.wrapError(err)
	}
	return requireRows(res)
}

// FindProfileByUsername username 等值查询，不存在返回 (nil, nil)
func (s *Store) FindProfileByUsername(ctx context.Context, username string) (*model.UserProfile, error) {
	profile, err := s.scanProfile(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+profileColumns+` FROM profiles WHERE username = $1`), username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return profile, err
}

func (s *Store) scanProfile(row *sql.Row) (*model.UserProfile, error) {
	profile := &model.UserProfile{}
	var role string
	var username, receiver, donor, stats sql.NullString
	err := row.Scan(&profile.ID, &profile.Email, &role, &username,
		&profile.ProfileCompleted, &receiver, &donor, &stats,
		&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return nil, err
	}
	profile.Role = model.Role(role)
	profile.Username = username.String

	if receiver.Valid {
		profile.Receiver = &model.ReceiverProfile{}
		if err := unmarshalJSON(receiver, profile.Receiver); err != nil {
			return nil, err
		}
	}
	if donor.Valid {
		profile.Donor = &model.DonorProfile{}
		if err := unmarshalJSON(donor, profile.Donor); err != nil {
			return nil, err
		}
	}
	if err := unmarshalJSON(stats, &profile.Stats); err != nil {
		return nil, err
	}
	return profile, nil
}
