package models

// UnlockRequest 解锁请求（POST /api/posts/unlock）
// UserPubkey is the connected wallet; an empty value means no wallet is connected.
// UserID defaults to UserPubkey when the client has no local handle.
// Exactly one of TxnSignature (client-submitted payment) or SerializedTx
// (user-signed transfer for the relay) is expected, depending on the provider.
type UnlockRequest struct {
	PostID       string `json:"postId" binding:"required"`
	UserPubkey   string `json:"userPubkey"`
	UserID       string `json:"userId,omitempty"`
	TxnSignature string `json:"txnSignature,omitempty"`
	SerializedTx string `json:"serializedTx,omitempty"`
}

// UnlockResponse 解锁响应
type UnlockResponse struct {
	PostID          string        `json:"postId"`
	UserID          string        `json:"userId"`
	Access          AccessState   `json:"access"`
	AlreadyUnlocked bool          `json:"alreadyUnlocked"`
	Record          *UnlockRecord `json:"record,omitempty"`
	View            *PostView     `json:"view,omitempty"`
}

// CreateUserRequest 创建用户
type CreateUserRequest struct {
	ID            string `json:"id"`
	Handle        string `json:"handle" binding:"required"`
	WalletAddress string `json:"walletAddress"`
}

// CreatePostRequest 创建帖子
type CreatePostRequest struct {
	CreatorID     string     `json:"creatorId" binding:"required"`
	Title         string     `json:"title"`
	Caption       string     `json:"caption"`
	MediaType     MediaType  `json:"mediaType"`
	MediaPath     string     `json:"mediaPath" binding:"required"`
	ThumbnailPath string     `json:"thumbnailPath"`
	PriceLamports uint64     `json:"priceLamports"`
	Visibility    Visibility `json:"visibility"`
	Status        PostStatus `json:"status"`
}

// UpdatePostRequest carries only creator-owned pricing/visibility metadata.
// Nil fields are left unchanged.
type UpdatePostRequest struct {
	PriceLamports *uint64     `json:"priceLamports"`
	Visibility    *Visibility `json:"visibility"`
	Status        *PostStatus `json:"status"`
}

// UnlockAction is the affordance a locked view exposes to trigger an unlock.
type UnlockAction struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	PostID string `json:"postId"`
}

// PostView is the per-surface projection of a post for one viewer.
// MediaURL is empty unless the access state allows full media.
type PostView struct {
	ID             string        `json:"id"`
	CreatorID      string        `json:"creatorId"`
	Surface        string        `json:"surface"`
	Title          string        `json:"title,omitempty"`
	Caption        string        `json:"caption,omitempty"`
	MediaType      MediaType     `json:"mediaType"`
	Visibility     Visibility    `json:"visibility"`
	Access         AccessState   `json:"access"`
	Blurred        bool          `json:"blurred"`
	ThumbnailURL   string        `json:"thumbnailUrl,omitempty"`
	MediaURL       string        `json:"mediaUrl,omitempty"`
	PriceBadge     string        `json:"priceBadge,omitempty"`
	PurchasedBadge bool          `json:"purchasedBadge"`
	Unlock         *UnlockAction `json:"unlock,omitempty"`
}
