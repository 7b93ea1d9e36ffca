package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DatabaseStore persists identities using GORM.
type DatabaseStore struct {
	db          *gorm.DB
	driverLabel string
}

type identityRecord struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Name         string    `gorm:"column:name;size:100;not null"`
	Email        string    `gorm:"column:email;size:100;uniqueIndex;not null"`
	PasswordHash string    `gorm:"column:password;size:255;not null"`
	AccountType  string    `gorm:"column:account_type;size:10;not null;default:'public'"`
	ProfilePic   string    `gorm:"column:profile_pic;size:255;not null;default:''"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

func (identityRecord) TableName() string {
	return "users"
}

func (record identityRecord) toIdentity() Identity {
	return Identity{
		ID:           record.ID,
		Name:         record.Name,
		Email:        record.Email,
		AccountType:  record.AccountType,
		ProfilePic:   record.ProfilePic,
		PasswordHash: record.PasswordHash,
	}
}

// NewDatabaseStore migrates the users table and returns a store bound to db.
func NewDatabaseStore(ctx context.Context, db *gorm.DB, driverLabel string) (*DatabaseStore, error) {
	if migrateErr := db.WithContext(ctx).AutoMigrate(&identityRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("identity_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseStore{db: db, driverLabel: driverLabel}, nil
}

// Lookup returns the identity with the given id.
func (store *DatabaseStore) Lookup(ctx context.Context, identityID string) (Identity, error) {
	var record identityRecord
	err := store.db.WithContext(ctx).Where("id = ?", identityID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Identity{}, fmt.Errorf("identity_store.lookup.%s: %w", store.driverLabel, ErrIdentityNotFound)
		}
		return Identity{}, fmt.Errorf("identity_store.lookup.%s: %w", store.driverLabel, err)
	}
	return record.toIdentity(), nil
}

// LookupByEmail returns the identity registered under the email.
func (store *DatabaseStore) LookupByEmail(ctx context.Context, email string) (Identity, error) {
	var record identityRecord
	err := store.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Identity{}, fmt.Errorf("identity_store.lookup_email.%s: %w", store.driverLabel, ErrIdentityNotFound)
		}
		return Identity{}, fmt.Errorf("identity_store.lookup_email.%s: %w", store.driverLabel, err)
	}
	return record.toIdentity(), nil
}

// Create inserts a new identity; a duplicate email yields ErrEmailTaken.
func (store *DatabaseStore) Create(ctx context.Context, candidate NewIdentity) (Identity, error) {
	if err := validateCandidate(candidate); err != nil {
		return Identity{}, fmt.Errorf("identity_store.create.%s: %w", store.driverLabel, err)
	}
	record := identityRecord{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(candidate.Name),
		Email:        normalizeEmail(candidate.Email),
		PasswordHash: candidate.PasswordHash,
		AccountType:  normalizeAccountType(candidate.AccountType),
		ProfilePic:   candidate.ProfilePic,
		CreatedAt:    time.Now().UTC(),
	}
	result := store.db.WithContext(ctx).
		Where("email = ?", record.Email).
		Attrs(record).
		FirstOrCreate(&identityRecord{})
	if result.Error != nil {
		return Identity{}, fmt.Errorf("identity_store.create.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return Identity{}, fmt.Errorf("identity_store.create.%s: %w", store.driverLabel, ErrEmailTaken)
	}
	return record.toIdentity(), nil
}

// Remove deletes the identity with the given id.
func (store *DatabaseStore) Remove(ctx context.Context, identityID string) error {
	if err := store.db.WithContext(ctx).Where("id = ?", identityID).Delete(&identityRecord{}).Error; err != nil {
		return fmt.Errorf("identity_store.remove.%s: %w", store.driverLabel, err)
	}
	return nil
}
