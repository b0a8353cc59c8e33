package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/lamim/catalogseo/pkg/models"
)

// checkpointRecord is the table row; the checkpoint itself lives in Document
type checkpointRecord struct {
	TenantID  string `gorm:"primaryKey;size:128"`
	IsRunning bool   `gorm:"index"`
	Document  datatypes.JSON
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (checkpointRecord) TableName() string { return "seo_checkpoints" }

// OpenDB opens a gorm connection for driver "sqlite" or "postgres"
func OpenDB(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	return db, nil
}

// SQLStore persists checkpoints in a relational database through gorm
type SQLStore struct {
	db     *gorm.DB
	logger *slog.Logger
	// sqlite has no row locks; the mutex keeps read-modify-write atomic in-process
	mu sync.Mutex
}

// NewSQLStore migrates the checkpoint table and returns the store
func NewSQLStore(db *gorm.DB, logger *slog.Logger) (*SQLStore, error) {
	if err := db.AutoMigrate(&checkpointRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate checkpoint table: %w", err)
	}
	return &SQLStore{db: db, logger: logger.With("component", "checkpoint_sql")}, nil
}

func (s *SQLStore) Load(ctx context.Context, tenantID string) (*models.Checkpoint, error) {
	var rec checkpointRecord
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return decodeRecord(rec)
}

func (s *SQLStore) Upsert(ctx context.Context, tenantID string, update Update) (*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out *models.Checkpoint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("tenant_id = ?", tenantID)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var existing *models.Checkpoint
		var rec checkpointRecord
		err := q.Take(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return fmt.Errorf("failed to load checkpoint: %w", err)
		default:
			existing, err = decodeRecord(rec)
			if err != nil {
				return err
			}
		}

		cp := apply(tenantID, existing, update)
		doc, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("failed to marshal checkpoint: %w", err)
		}

		row := checkpointRecord{
			TenantID:  tenantID,
			IsRunning: cp.IsRunning,
			Document:  datatypes.JSON(doc),
			UpdatedAt: cp.UpdatedAt,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_running", "document", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to upsert checkpoint: %w", err)
		}
		out = cp
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Checkpoint saved", "tenant_id", tenantID, "running", out.IsRunning)
	return out.Clone(), nil
}

func (s *SQLStore) ListTenants(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&checkpointRecord{}).Order("tenant_id").Pluck("tenant_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return ids, nil
}

func decodeRecord(rec checkpointRecord) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	if err := json.Unmarshal(rec.Document, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	cp.TenantID = rec.TenantID
	cp.Normalize()
	return &cp, nil
}
