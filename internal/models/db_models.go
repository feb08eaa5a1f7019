package models

import "time"

// Visibility is advisory labeling metadata for a post. It is not an access gate.
type Visibility string

const (
	VisibilityPublic      Visibility = "public"
	VisibilitySubscribers Visibility = "subscribers"
	VisibilityGoon        Visibility = "goon" // token-gated
)

// PostStatus controls whether a post is resolvable to viewers at all.
type PostStatus string

const (
	StatusDraft     PostStatus = "draft"
	StatusPublished PostStatus = "published"
	StatusHidden    PostStatus = "hidden"
)

// MediaType 媒体类型
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// User is a locally generated identity. Creators receive payments at WalletAddress.
type User struct {
	ID            string    `gorm:"primaryKey;size:64" json:"id" validate:"required,max=64"`
	Handle        string    `gorm:"uniqueIndex;size:64;not null" json:"handle" validate:"required,min=2,max=64"`
	WalletAddress string    `gorm:"size:44" json:"walletAddress,omitempty" validate:"omitempty,min=32,max=44"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Post is a creator's media post. The creator exclusively owns PriceLamports,
// Visibility and Status. There is deliberately no "unlocked" flag here: access is
// always resolved against the ledger.
type Post struct {
	ID            string     `gorm:"primaryKey;size:64" json:"id" validate:"max=64"`
	CreatorID     string     `gorm:"index;size:64;not null" json:"creatorId" validate:"required,max=64"`
	Title         string     `gorm:"size:200" json:"title" validate:"max=200"`
	Caption       string     `gorm:"type:text" json:"caption"`
	MediaType     MediaType  `gorm:"size:10;default:'image'" json:"mediaType" validate:"oneof=image video"`
	MediaPath     string     `gorm:"size:500;not null" json:"-" validate:"required,max=500"`
	ThumbnailPath string     `gorm:"size:500" json:"-" validate:"max=500"`
	PriceLamports uint64     `gorm:"not null;default:0" json:"priceLamports"`
	Visibility    Visibility `gorm:"size:20;default:'public'" json:"visibility" validate:"oneof=public subscribers goon"`
	Status        PostStatus `gorm:"size:20;default:'draft';index" json:"status" validate:"oneof=draft published hidden"`
	CreatedAt     time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Gated reports whether the post needs payment, regardless of Visibility.
func (p *Post) Gated() bool {
	return p.PriceLamports > 0
}

// UnlockRecord is a ledger entry: permanent paid access for one (user, post) pair.
// AmountLamports is the price captured at purchase time.
type UnlockRecord struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	UserID         string    `gorm:"uniqueIndex:idx_unlock_user_post,priority:1;size:64;not null" json:"userId"`
	PostID         string    `gorm:"uniqueIndex:idx_unlock_user_post,priority:2;size:64;not null" json:"postId"`
	AmountLamports uint64    `gorm:"not null" json:"amountLamports"`
	TxnSignature   string    `gorm:"uniqueIndex;size:88;not null" json:"txnSignature"`
	PayerAddress   string    `gorm:"size:44" json:"payerAddress,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TableName 账本表名
func (UnlockRecord) TableName() string {
	return "unlock_records"
}
