package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/lamim/catalogseo/pkg/models"
)

const checkpointExt = ".checkpoint.json"

// FileStore persists one JSON document per tenant under a directory
type FileStore struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex // serializes read-modify-write cycles
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

func (s *FileStore) path(tenantID string) string {
	return filepath.Join(s.dir, tenantID+checkpointExt)
}

func (s *FileStore) Load(_ context.Context, tenantID string) (*models.Checkpoint, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(tenantID)
}

func (s *FileStore) read(tenantID string) (*models.Checkpoint, error) {
	data, err := os.ReadFile(s.path(tenantID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	cp.Normalize()
	return &cp, nil
}

func (s *FileStore) Upsert(_ context.Context, tenantID string, update Update) (*models.Checkpoint, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read(tenantID)
	if err != nil {
		return nil, err
	}
	cp := apply(tenantID, existing, update)
	if err := s.write(cp); err != nil {
		return nil, err
	}
	return cp.Clone(), nil
}

// write does an atomic temp-file + rename
func (s *FileStore) write(cp *models.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	checkpointPath := s.path(cp.TenantID)
	tempPath := checkpointPath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp checkpoint: %w", err)
	}
	if err := os.Rename(tempPath, checkpointPath); err != nil {
		return fmt.Errorf("failed to rename checkpoint: %w", err)
	}

	s.logger.Debug("Checkpoint saved", "path", checkpointPath, "running", cp.IsRunning)
	return nil
}

func (s *FileStore) ListTenants(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), checkpointExt) {
			continue
		}
		out = append(out, strings.TrimSuffix(entry.Name(), checkpointExt))
	}
	sort.Strings(out)
	return out, nil
}
