package model

import "time"

// Listing 食物分享信息，由捐赠方发布
type Listing struct {
	ID          string    `json:"id" bson:"_id" db:"id"`
	DonorID     string    `json:"donor_id" bson:"donor_id" db:"donor_id"`
	Title       string    `json:"title" bson:"title" db:"title"`
	Description string    `json:"description,omitempty" bson:"description,omitempty" db:"description"`
	Provider    string    `json:"provider,omitempty" bson:"provider,omitempty" db:"provider"`
	IsFree      bool      `json:"is_free" bson:"is_free" db:"is_free"`
	ExpiresAt   time.Time `json:"expires_at,omitzero" bson:"expires_at,omitempty" db:"expires_at"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at" db:"created_at"`
}
