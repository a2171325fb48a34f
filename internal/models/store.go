package models

// Store connection statuses.
const (
	StatusConnected     = "CONNECTED"
	StatusNeedReconnect = "NEED_RECONNECT"
	StatusDisconnected  = "DISCONNECTED"
)

// Store is a connected TikTok shop account and its OAuth credentials.
// Token columns hold secrets and must never be written to logs or the run
// log unredacted.
type Store struct {
	ID        int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	StoreCode string `json:"store_code" gorm:"column:store_code;size:64;uniqueIndex;not null"`
	Name      string `json:"name" gorm:"column:name;size:255"`
	OpenID    string `json:"open_id" gorm:"column:open_id;size:128"`
	Status    string `json:"status" gorm:"column:status;size:32;index"`

	AccessToken      string `json:"-" gorm:"column:access_token"`
	AccessExpiresAt  int64  `json:"access_expires_at" gorm:"column:access_expires_at"`
	RefreshToken     string `json:"-" gorm:"column:refresh_token"`
	RefreshExpiresAt int64  `json:"refresh_expires_at" gorm:"column:refresh_expires_at"`

	// LastSyncAt is the Unix timestamp of the last successful sync, zero
	// when the store has never been synced.
	LastSyncAt int64 `json:"last_sync_at" gorm:"column:last_sync_at"`
}

func (Store) TableName() string {
	return "stores"
}
