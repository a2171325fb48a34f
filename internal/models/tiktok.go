package models

import "context"

// AccountInfo is the TikTok account profile and counters as returned by the
// user info endpoint.
type AccountInfo struct {
	OpenID         string `json:"open_id"`
	DisplayName    string `json:"display_name"`
	AvatarURL      string `json:"avatar_url"`
	FollowerCount  int64  `json:"follower_count"`
	FollowingCount int64  `json:"following_count"`
	LikesCount     int64  `json:"likes_count"`
	VideoCount     int64  `json:"video_count"`
}

// VideoItem is one entry of the paginated video list endpoint.
type VideoItem struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	CoverURL     string `json:"cover_image_url"`
	ShareURL     string `json:"share_url"`
	CreateTime   int64  `json:"create_time"`
	ViewCount    int64  `json:"view_count"`
	LikeCount    int64  `json:"like_count"`
	CommentCount int64  `json:"comment_count"`
	ShareCount   int64  `json:"share_count"`
}

// TokenPair is the result of a refresh-token exchange.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  int64
	RefreshToken     string
	RefreshExpiresAt int64
}

// MetricsAPI is the upstream TikTok open API as the sync engine sees it.
type MetricsAPI interface {
	GetAccountInfo(ctx context.Context, accessToken string) (*AccountInfo, error)
	// FetchAllVideos walks the cursor-paginated video list up to maxItems
	// entries; the cap bounds worst-case latency under the store lock.
	FetchAllVideos(ctx context.Context, accessToken string, maxItems int) ([]*VideoItem, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenPair, error)
	// IsAuthFailure reports whether err means the bearer token was rejected,
	// as opposed to a transient upstream problem.
	IsAuthFailure(err error) bool
}

// TokenProvider supplies valid credentials per store and records
// credential-related side effects.
type TokenProvider interface {
	// GetValidToken returns a usable bearer token for the store, refreshing
	// it first when expired, or an empty string when none is obtainable.
	GetValidToken(ctx context.Context, storeCode string) (string, error)
	FlagNeedsReconnect(ctx context.Context, storeCode string) error
	UpdateLastSyncTime(ctx context.Context, storeCode string) error
}

// Notifier delivers operator alerts. Implementations must never block a
// sync on delivery problems.
type Notifier interface {
	NotifyReconnect(storeCode, reason string)
}
