package follow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseStore persists follow edges using GORM.
type DatabaseStore struct {
	db          *gorm.DB
	driverLabel string
}

type edgeRecord struct {
	ID          string    `gorm:"column:id;primaryKey"`
	RequesterID string    `gorm:"column:user_id;size:36;not null;uniqueIndex:idx_follows_pair,priority:1"`
	TargetID    string    `gorm:"column:target_id;size:36;not null;uniqueIndex:idx_follows_pair,priority:2;index:idx_follows_target_status,priority:1"`
	Status      string    `gorm:"column:status;size:10;not null;index:idx_follows_target_status,priority:2"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
}

func (edgeRecord) TableName() string {
	return "follows"
}

func (record edgeRecord) toEdge() Edge {
	return Edge{
		ID:          record.ID,
		RequesterID: record.RequesterID,
		TargetID:    record.TargetID,
		Status:      Status(record.Status),
		CreatedAt:   record.CreatedAt.UTC(),
	}
}

var _ Store = (*DatabaseStore)(nil)

// NewDatabaseStore migrates the follows table and returns a store bound to db.
func NewDatabaseStore(ctx context.Context, db *gorm.DB, driverLabel string) (*DatabaseStore, error) {
	if migrateErr := db.WithContext(ctx).AutoMigrate(&edgeRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("follow_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseStore{db: db, driverLabel: driverLabel}, nil
}

// Driver exposes the selected database driver label.
func (store *DatabaseStore) Driver() string {
	return store.driverLabel
}

func (store *DatabaseStore) Find(ctx context.Context, requesterID string, targetID string) (Edge, error) {
	var record edgeRecord
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND target_id = ?", requesterID, targetID).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Edge{}, fmt.Errorf("follow_store.find.%s: %w", store.driverLabel, ErrEdgeNotFound)
		}
		return Edge{}, fmt.Errorf("follow_store.find.%s: %w", store.driverLabel, err)
	}
	return record.toEdge(), nil
}

func (store *DatabaseStore) Insert(ctx context.Context, edge Edge) (bool, error) {
	record := edgeRecord{
		ID:          edge.ID,
		RequesterID: edge.RequesterID,
		TargetID:    edge.TargetID,
		Status:      string(edge.Status),
		CreatedAt:   edge.CreatedAt.UTC(),
	}
	result := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		return false, fmt.Errorf("follow_store.insert.%s: %w", store.driverLabel, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (store *DatabaseStore) Resend(ctx context.Context, requesterID string, targetID string, createdAt time.Time) (bool, error) {
	result := store.db.WithContext(ctx).Model(&edgeRecord{}).
		Where("user_id = ? AND target_id = ? AND status = ?", requesterID, targetID, string(StatusRejected)).
		Updates(map[string]interface{}{
			"status":     string(StatusPending),
			"created_at": createdAt.UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("follow_store.resend.%s: %w", store.driverLabel, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (store *DatabaseStore) Delete(ctx context.Context, requesterID string, targetID string) (bool, error) {
	result := store.db.WithContext(ctx).
		Where("user_id = ? AND target_id = ?", requesterID, targetID).
		Delete(&edgeRecord{})
	if result.Error != nil {
		return false, fmt.Errorf("follow_store.delete.%s: %w", store.driverLabel, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (store *DatabaseStore) Resolve(ctx context.Context, edgeID string, targetID string, next Status) (bool, error) {
	result := store.db.WithContext(ctx).Model(&edgeRecord{}).
		Where("id = ? AND target_id = ? AND status = ?", edgeID, targetID, string(StatusPending)).
		Update("status", string(next))
	if result.Error != nil {
		return false, fmt.Errorf("follow_store.resolve.%s: %w", store.driverLabel, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (store *DatabaseStore) ListPending(ctx context.Context, targetID string) ([]Edge, error) {
	var records []edgeRecord
	err := store.db.WithContext(ctx).
		Where("target_id = ? AND status = ?", targetID, string(StatusPending)).
		Order("created_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("follow_store.list_pending.%s: %w", store.driverLabel, err)
	}
	return toEdges(records), nil
}

func (store *DatabaseStore) ListFollowers(ctx context.Context, userID string, page Page) ([]Edge, error) {
	edges, err := store.listAccepted(ctx, "target_id", userID, page)
	if err != nil {
		return nil, fmt.Errorf("follow_store.list_followers.%s: %w", store.driverLabel, err)
	}
	return edges, nil
}

func (store *DatabaseStore) ListFollowing(ctx context.Context, userID string, page Page) ([]Edge, error) {
	edges, err := store.listAccepted(ctx, "user_id", userID, page)
	if err != nil {
		return nil, fmt.Errorf("follow_store.list_following.%s: %w", store.driverLabel, err)
	}
	return edges, nil
}

func (store *DatabaseStore) CountFollowers(ctx context.Context, userID string) (int64, error) {
	count, err := store.countAccepted(ctx, "target_id", userID)
	if err != nil {
		return 0, fmt.Errorf("follow_store.count_followers.%s: %w", store.driverLabel, err)
	}
	return count, nil
}

func (store *DatabaseStore) CountFollowing(ctx context.Context, userID string) (int64, error) {
	count, err := store.countAccepted(ctx, "user_id", userID)
	if err != nil {
		return 0, fmt.Errorf("follow_store.count_following.%s: %w", store.driverLabel, err)
	}
	return count, nil
}

// Transact runs fn inside a database transaction; fn must use only the store it receives.
func (store *DatabaseStore) Transact(ctx context.Context, fn func(tx Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DatabaseStore{db: tx, driverLabel: store.driverLabel})
	})
}

func (store *DatabaseStore) listAccepted(ctx context.Context, column string, userID string, page Page) ([]Edge, error) {
	var records []edgeRecord
	err := store.db.WithContext(ctx).
		Where(column+" = ? AND status = ?", userID, string(StatusAccepted)).
		Order("created_at ASC, id ASC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return toEdges(records), nil
}

func (store *DatabaseStore) countAccepted(ctx context.Context, column string, userID string) (int64, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&edgeRecord{}).
		Where(column+" = ? AND status = ?", userID, string(StatusAccepted)).
		Count(&count).Error
	return count, err
}

func toEdges(records []edgeRecord) []Edge {
	edges := make([]Edge, 0, len(records))
	for _, record := range records {
		edges = append(edges, record.toEdge())
	}
	return edges
}
