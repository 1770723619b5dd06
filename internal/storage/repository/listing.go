package repository

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"foodnextdoor/internal/model"
	"foodnextdoor/internal/storage"
)

const listingColumns = `id, donor_id, title, description, provider, is_free, expires_at, created_at`

// CreateListing 发布食物分享信息
func (s *Store) CreateListing(ctx context.Context, listing *model.Listing) error {
	var expires interface{}
	if !listing.ExpiresAt.IsZero() {
		expires = listing.ExpiresAt
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO listings (`+listingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`),
		listing.ID, listing.DonorID, listing.Title, nullable(listing.Description),
		nullable(listing.Provider), listing.IsFree, expires, listing.CreatedAt,
	)
	return s.wrapError(err)
}

// GetListing 点查，不存在返回 ErrNotFound
func (s *Store) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`), id)
	if err != nil {
		return nil, s.wrapError(err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, storage.ErrNotFound
	}
	return scanListing(rows)
}

// ListListings 按创建时间倒序返回，search 非空时按标题/描述子串过滤
func (s *Store) ListListings(ctx context.Context, search string, limit int) ([]*model.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings`
	args := []interface{}{}
	if search != "" {
		// SQLite 的 ? 绑定按文本顺序，占位符不可复用，模式传两次
		query += ` WHERE LOWER(title) LIKE $1 OR LOWER(description) LIKE $2`
		pattern := "%" + strings.ToLower(search) + "%"
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, s.wrapError(err)
	}
	defer rows.Close()

	results := []*model.Listing{}
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, listing)
	}
	return results, rows.Err()
}

func scanListing(rows *sql.Rows) (*model.Listing, error) {
	listing := &model.Listing{}
	var description, provider sql.NullString
	var expires sql.NullTime
	err := rows.Scan(&listing.ID, &listing.DonorID, &listing.Title, &description,
		&provider, &listing.IsFree, &expires, &listing.CreatedAt)
	if err != nil {
		return nil, err
	}
	listing.Description = description.String
	listing.Provider = provider.String
	if expires.Valid {
		listing.ExpiresAt = expires.Time
	}
	return listing, nil
}
