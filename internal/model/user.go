package model

import (
	"fmt"
	"time"
)

// Role 用户角色，注册时选定，决定档案补全表单的类型
type Role string

const (
	RoleReceiver Role = "Food Receiver"
	RoleDonor    Role = "Food Donor"
)

// Valid 校验角色取值
func (r Role) Valid() bool {
	return r == RoleReceiver || r == RoleDonor
}

// Account 凭据身份（Credential Store 侧），与 UserProfile 共享同一 ID
type Account struct {
	ID            string    `json:"id" bson:"_id" db:"id"`
	Email         string    `json:"email" bson:"email" db:"email"`
	PasswordHash  string    `json:"-" bson:"password_hash" db:"password_hash"` // never expose in JSON
	EmailVerified bool      `json:"email_verified" bson:"email_verified" db:"email_verified"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" bson:"updated_at" db:"updated_at"`
}

// ReceiverProfile 接收方档案字段组（通用档案表单）
type ReceiverProfile struct {
	FirstName string `json:"first_name" bson:"first_name" db:"first_name"`
	LastName  string `json:"last_name" bson:"last_name" db:"last_name"`
	Address   string `json:"address" bson:"address" db:"address"`
	Phone     string `json:"phone" bson:"phone" db:"phone"`
	Allergens string `json:"allergens,omitempty" bson:"allergens,omitempty" db:"allergens"` // 可选
}

// DonorProfile 捐赠方（商家）档案字段组
type DonorProfile struct {
	BusinessType string `json:"business_type" bson:"business_type" db:"business_type"`
	ABN          string `json:"abn" bson:"abn" db:"abn"`
	ContactNo    string `json:"contact_no" bson:"contact_no" db:"contact_no"`
	Address      string `json:"address" bson:"address" db:"address"`
	OpeningTime  string `json:"opening_time" bson:"opening_time" db:"opening_time"` // "HH:mm"
	ClosingTime  string `json:"closing_time" bson:"closing_time" db:"closing_time"` // "HH:mm"
}

// OpeningHours 格式化为展示用的 "HH:mm - HH:mm"
func (d *DonorProfile) OpeningHours() string {
	if d.OpeningTime == "" && d.ClosingTime == "" {
		return ""
	}
	return fmt.Sprintf("%s - %s", d.OpeningTime, d.ClosingTime)
}

// ProfileStats 展示用统计计数器
// 档案工作流从不写入这些字段，缺省一律为 0
type ProfileStats struct {
	ItemsReceived  int     `json:"items_received" bson:"items_received,omitempty" db:"items_received"`
	ItemsDonated   int     `json:"items_donated" bson:"items_donated,omitempty" db:"items_donated"`
	OrdersReceived int     `json:"orders_received" bson:"orders_received,omitempty" db:"orders_received"`
	PeopleHelped   int     `json:"people_helped" bson:"people_helped,omitempty" db:"people_helped"`
	Rating         float64 `json:"rating" bson:"rating,omitempty" db:"rating"`
}

// UserProfile 用户档案文档，以凭据 ID 为 key（1:1 同生命周期）
//
// 角色字段组采用带标签的变体：Role 指明哪个分支有效，Receiver/Donor
// 至多一个非 nil。避免了"字段缺失是因为角色不符还是尚未填写"的歧义。
type UserProfile struct {
	ID               string           `json:"id" bson:"_id" db:"id"`
	Email            string           `json:"email" bson:"email" db:"email"`
	Role             Role             `json:"role" bson:"role" db:"role"`
	Username         string           `json:"username,omitempty" bson:"username,omitempty" db:"username"`
	ProfileCompleted bool             `json:"profile_completed" bson:"profile_completed" db:"profile_completed"`
	Receiver         *ReceiverProfile `json:"receiver,omitempty" bson:"receiver,omitempty" db:"receiver"`
	Donor            *DonorProfile    `json:"donor,omitempty" bson:"donor,omitempty" db:"donor"`
	Stats            ProfileStats     `json:"stats" bson:"stats,omitempty" db:"stats"`
	CreatedAt        time.Time        `json:"created_at" bson:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" bson:"updated_at" db:"updated_at"`
}

// Validate 校验档案内部一致性
func (p *UserProfile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	if !p.Role.Valid() {
		return fmt.Errorf("invalid role: %q", p.Role)
	}
	if p.Receiver != nil && p.Donor != nil {
		return fmt.Errorf("profile cannot carry both receiver and donor fields")
	}
	if p.Receiver != nil && p.Role != RoleReceiver {
		return fmt.Errorf("receiver fields on a %q profile", p.Role)
	}
	if p.Donor != nil && p.Role != RoleDonor {
		return fmt.Errorf("donor fields on a %q profile", p.Role)
	}
	return nil
}
