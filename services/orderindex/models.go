package orderindex

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Order is the latest known state of one marketplace order.
type Order struct {
	Pallet     string `gorm:"primaryKey;size:64"`
	OrderID    string `gorm:"primaryKey;size:66"`
	OfferingID string `gorm:"size:66"`
	Customer   string `gorm:"index;size:64"`
	Seller     string `gorm:"index;size:64"`
	TrackingID string `gorm:"index;size:128"`
	Currency   string `gorm:"size:16"`
	AssetID    *uint32
	Total      string `gorm:"size:80"`
	Escrow     string `gorm:"size:64"`
	Status     string `gorm:"index;size:16"`
	// ChainUpdatedAt is the runtime timestamp carried by the last event.
	ChainUpdatedAt int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Tracking mirrors a tracking record.
type Tracking struct {
	Kind           string `gorm:"primaryKey;size:64"`
	TrackingID     string `gorm:"primaryKey;size:128"`
	OrderID        string `gorm:"index;size:66"`
	Seller         string `gorm:"index;size:64"`
	Status         string `gorm:"size:16"`
	ChainUpdatedAt int64
	UpdatedAt      time.Time
}

// Event is the raw event log. Fingerprint makes replays idempotent; Source
// and EventIndex locate the event within the call that emitted it.
type Event struct {
	ID          uint   `gorm:"primaryKey"`
	Fingerprint string `gorm:"uniqueIndex;size:64"`
	Type        string `gorm:"index;size:64"`
	Pallet      string `gorm:"index;size:64"`
	OrderID     string `gorm:"index;size:66"`
	Source      string `gorm:"index;size:80"`
	EventIndex  int
	Attributes  string `gorm:"type:text"`
	RecordedAt  time.Time
}

func (Order) TableName() string    { return "market_orders" }
func (Tracking) TableName() string { return "market_tracking" }
func (Event) TableName() string    { return "market_events" }

// AutoMigrate creates or updates the index schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Order{}, &Tracking{}, &Event{})
}

// Open connects to the index database. driver is "sqlite" or "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("orderindex: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("orderindex: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("orderindex: migrate: %w", err)
	}
	return db, nil
}
