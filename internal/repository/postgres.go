package repository

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/shoplens/tiksync/internal/models"
	"github.com/shoplens/tiksync/pkg/logger"
)

type DB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (*DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // Use standard logger
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond, // Log queries slower than this
			LogLevel:                  gormLogger.Warn,        // Only log warnings or errors
			IgnoreRecordNotFoundError: true,                   // Suppress "record not found" errors
			Colorful:                  true,                   // Enable colorful logs
		},
	)
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %s", err)
	}

	db := &DB{Conn: conn, logger: logger}
	if err := db.Migrate(); err != nil {
		return nil, err
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return db, nil
}

// New wraps an already-open gorm connection. Used by tests, which run
// against sqlite instead of Postgres.
func New(conn *gorm.DB, logger *logger.Logger) (*DB, error) {
	db := &DB{Conn: conn, logger: logger}
	if err := db.Migrate(); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) Migrate() error {
	if err := db.Conn.AutoMigrate(
		&models.Store{},
		&models.SyncLock{},
		&models.SyncRun{},
		&models.AccountSnapshot{},
		&models.VideoSnapshot{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate models: %s", err)
	}
	return nil
}

func (db *DB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %s", err)
	}
	return sqlDB.Close()
}

// --- Stores ---

func (db *DB) GetStore(ctx context.Context, storeCode string) (*models.Store, error) {
	var store models.Store
	if err := db.Conn.WithContext(ctx).Where("store_code = ?", storeCode).First(&store).Error; err != nil {
		return nil, fmt.Errorf("failed to get store: %s", err)
	}
	return &store, nil
}

func (db *DB) ListConnectedStores(ctx context.Context) ([]*models.Store, error) {
	var stores []*models.Store
	if err := db.Conn.WithContext(ctx).
		Where("status = ?", models.StatusConnected).
		Order("store_code").
		Find(&stores).Error; err != nil {
		return nil, fmt.Errorf("failed to list connected stores: %s", err)
	}
	return stores, nil
}

func (db *DB) ListStoresWithExpiringTokens(ctx context.Context, before int64) ([]*models.Store, error) {
	var stores []*models.Store
	if err := db.Conn.WithContext(ctx).
		Where("status = ? AND access_expires_at < ?", models.StatusConnected, before).
		Order("store_code").
		Find(&stores).Error; err != nil {
		return nil, fmt.Errorf("failed to list stores with expiring tokens: %s", err)
	}
	return stores, nil
}

func (db *DB) UpdateStoreStatus(ctx context.Context, storeCode, status string) error {
	if err := db.Conn.WithContext(ctx).Model(&models.Store{}).
		Where("store_code = ?", storeCode).
		Update("status", status).Error; err != nil {
		return fmt.Errorf("failed to update store status: %s", err)
	}
	return nil
}

func (db *DB) UpdateStoreTokens(ctx context.Context, storeCode, accessToken string, accessExpiresAt int64, refreshToken string, refreshExpiresAt int64) error {
	if err := db.Conn.WithContext(ctx).Model(&models.Store{}).
		Where("store_code = ?", storeCode).
		Updates(map[string]interface{}{
			"access_token":       accessToken,
			"access_expires_at":  accessExpiresAt,
			"refresh_token":      refreshToken,
			"refresh_expires_at": refreshExpiresAt,
			"status":             models.StatusConnected,
		}).Error; err != nil {
		return fmt.Errorf("failed to update store tokens: %s", err)
	}
	return nil
}

func (db *DB) UpdateLastSyncTime(ctx context.Context, storeCode string, at int64) error {
	if err := db.Conn.WithContext(ctx).Model(&models.Store{}).
		Where("store_code = ?", storeCode).
		Update("last_sync_at", at).Error; err != nil {
		return fmt.Errorf("failed to update last sync time: %s", err)
	}
	return nil
}

// --- Locks ---

func (db *DB) DeleteExpiredLock(ctx context.Context, lockKey string, now int64) error {
	if err := db.Conn.WithContext(ctx).
		Where("lock_key = ? AND expires_at < ?", lockKey, now).
		Delete(&models.SyncLock{}).Error; err != nil {
		return fmt.Errorf("failed to delete expired lock: %s", err)
	}
	return nil
}

// TryInsertLock creates the lock row if and only if no row exists for the
// key. Contention resolves on the primary-key constraint, not on a read.
func (db *DB) TryInsertLock(ctx context.Context, lock *models.SyncLock) error {
	if err := db.Conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(lock).Error; err != nil {
		return fmt.Errorf("failed to insert lock: %s", err)
	}
	return nil
}

func (db *DB) GetLock(ctx context.Context, lockKey string) (*models.SyncLock, error) {
	var lock models.SyncLock
	if err := db.Conn.WithContext(ctx).Where("lock_key = ?", lockKey).First(&lock).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lock: %s", err)
	}
	return &lock, nil
}

// TakeOverLock reassigns an expired lock. The WHERE clause pins the previous
// holder and its deadline, so two racing takeovers cannot both match the
// same prior row state.
func (db *DB) TakeOverLock(ctx context.Context, lockKey, prevOwner string, prevExpiresAt int64, newOwner string, newExpiresAt int64) (bool, error) {
	res := db.Conn.WithContext(ctx).Model(&models.SyncLock{}).
		Where("lock_key = ? AND locked_by = ? AND expires_at = ?", lockKey, prevOwner, prevExpiresAt).
		Updates(map[string]interface{}{
			"locked_by":  newOwner,
			"locked_at":  time.Now().Unix(),
			"expires_at": newExpiresAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to take over lock: %s", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (db *DB) DeleteLock(ctx context.Context, lockKey string) error {
	if err := db.Conn.WithContext(ctx).
		Where("lock_key = ?", lockKey).
		Delete(&models.SyncLock{}).Error; err != nil {
		return fmt.Errorf("failed to delete lock: %s", err)
	}
	return nil
}

// --- Snapshots ---

func (db *DB) UpsertAccountSnapshot(ctx context.Context, snap *models.AccountSnapshot) error {
	if err := db.Conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "store_code"}, {Name: "snapshot_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "avatar_url",
			"follower_count", "following_count", "likes_count", "video_count",
			"synced_at",
		}),
	}).Create(snap).Error; err != nil {
		return fmt.Errorf("failed to upsert account snapshot: %s", err)
	}
	return nil
}

func (db *DB) UpsertVideoSnapshots(ctx context.Context, snaps []*models.VideoSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	if err := db.Conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "store_code"}, {Name: "video_id"}, {Name: "snapshot_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "cover_url", "share_url", "create_time",
			"view_count", "like_count", "comment_count", "share_count",
			"synced_at",
		}),
	}).Create(snaps).Error; err != nil {
		return fmt.Errorf("failed to upsert video snapshots: %s", err)
	}
	return nil
}

func (db *DB) LatestAccountSnapshot(ctx context.Context, storeCode string) (*models.AccountSnapshot, error) {
	var snap models.AccountSnapshot
	// Explicit ordering on the snapshot date, never on insertion order.
	if err := db.Conn.WithContext(ctx).
		Where("store_code = ?", storeCode).
		Order("snapshot_date DESC").
		First(&snap).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest account snapshot: %s", err)
	}
	return &snap, nil
}

func (db *DB) ListVideoSnapshots(ctx context.Context, storeCode, snapshotDate string) ([]*models.VideoSnapshot, error) {
	var snaps []*models.VideoSnapshot
	if err := db.Conn.WithContext(ctx).
		Where("store_code = ? AND snapshot_date = ?", storeCode, snapshotDate).
		Order("view_count DESC").
		Find(&snaps).Error; err != nil {
		return nil, fmt.Errorf("failed to list video snapshots: %s", err)
	}
	return snaps, nil
}

// --- Run log ---

func (db *DB) CreateSyncRun(ctx context.Context, run *models.SyncRun) error {
	if err := db.Conn.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to create sync run: %s", err)
	}
	return nil
}

func (db *DB) FinishSyncRun(ctx context.Context, id int64, status, message string, durationMs int64) error {
	if err := db.Conn.WithContext(ctx).Model(&models.SyncRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"message":     message,
			"duration_ms": durationMs,
		}).Error; err != nil {
		return fmt.Errorf("failed to finish sync run: %s", err)
	}
	return nil
}

func (db *DB) ListSyncRuns(ctx context.Context, filter models.RunFilter) ([]*models.SyncRun, error) {
	q := db.Conn.WithContext(ctx).Model(&models.SyncRun{})
	if filter.StoreCode != "" {
		q = q.Where("store_code = ?", filter.StoreCode)
	}
	if filter.JobName != "" {
		q = q.Where("job_name = ?", filter.JobName)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var runs []*models.SyncRun
	if err := q.Order("run_time DESC, id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %s", err)
	}
	return runs, nil
}
