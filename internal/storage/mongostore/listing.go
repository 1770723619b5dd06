package mongostore

import (
	"context"

	"foodnextdoor/internal/model"
	"foodnextdoor/internal/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// ListingStore
// ============================================================================

func (s *Store) CreateListing(ctx context.Context, listing *model.Listing) error {
	return insertOne(ctx, s.col(ColListings), listing)
}

func (s *Store) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	listing, err := findOne[model.Listing](ctx, s.col(ColListings), bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, storage.ErrNotFound
	}
	return listing, nil
}

func (s *Store) ListListings(ctx context.Context, search string, limit int) ([]*model.Listing, error) {
	filter := bson.D{}
	if search != "" {
		// 标题/描述大小写不敏感子串匹配
		re := bson.D{{Key: "$regex", Value: search}, {Key: "$options", Value: "i"}}
		filter = bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "title", Value: re}},
			bson.D{{Key: "description", Value: re}},
		}}}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	return findMany[model.Listing](ctx, s.col(ColListings), filter, opts)
}
