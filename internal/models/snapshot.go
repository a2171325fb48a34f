package models

// AccountSnapshot is one store's account-level metrics for one calendar
// day. Re-running a sync on the same day overwrites the day's row instead
// of appending a second one.
type AccountSnapshot struct {
	ID        int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	StoreCode string `json:"store_code" gorm:"column:store_code;size:64;uniqueIndex:uniq_account_day;not null"`
	// SnapshotDate is the day the metrics describe, formatted 2006-01-02.
	SnapshotDate string `json:"snapshot_date" gorm:"column:snapshot_date;size:10;uniqueIndex:uniq_account_day;not null"`

	DisplayName    string `json:"display_name" gorm:"column:display_name;size:255"`
	AvatarURL      string `json:"avatar_url" gorm:"column:avatar_url"`
	FollowerCount  int64  `json:"follower_count" gorm:"column:follower_count"`
	FollowingCount int64  `json:"following_count" gorm:"column:following_count"`
	LikesCount     int64  `json:"likes_count" gorm:"column:likes_count"`
	VideoCount     int64  `json:"video_count" gorm:"column:video_count"`

	SyncedAt int64 `json:"synced_at" gorm:"column:synced_at"`
}

func (AccountSnapshot) TableName() string {
	return "account_snapshots"
}

// VideoSnapshot is one video's metrics for one calendar day, keyed by
// store, video and day so a same-day re-sync stays idempotent.
type VideoSnapshot struct {
	ID           int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	StoreCode    string `json:"store_code" gorm:"column:store_code;size:64;uniqueIndex:uniq_video_day;not null"`
	VideoID      string `json:"video_id" gorm:"column:video_id;size:64;uniqueIndex:uniq_video_day;not null"`
	SnapshotDate string `json:"snapshot_date" gorm:"column:snapshot_date;size:10;uniqueIndex:uniq_video_day;not null"`

	Title        string `json:"title" gorm:"column:title;size:512"`
	CoverURL     string `json:"cover_url" gorm:"column:cover_url"`
	ShareURL     string `json:"share_url" gorm:"column:share_url"`
	CreateTime   int64  `json:"create_time" gorm:"column:create_time"`
	ViewCount    int64  `json:"view_count" gorm:"column:view_count"`
	LikeCount    int64  `json:"like_count" gorm:"column:like_count"`
	CommentCount int64  `json:"comment_count" gorm:"column:comment_count"`
	ShareCount   int64  `json:"share_count" gorm:"column:share_count"`

	SyncedAt int64 `json:"synced_at" gorm:"column:synced_at"`
}

func (VideoSnapshot) TableName() string {
	return "video_snapshots"
}
