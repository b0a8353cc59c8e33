package checkpoint

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/lamim/catalogseo/pkg/models"
)

// Update mutates a loaded (or zero-state) checkpoint in place. Stores apply
// it atomically with respect to other Upserts for the same tenant.
type Update func(cp *models.Checkpoint)

// Store is the durable per-tenant checkpoint record
type Store interface {
	// Load returns nil, nil when the tenant has no checkpoint yet
	Load(ctx context.Context, tenantID string) (*models.Checkpoint, error)
	// Upsert applies update to the stored checkpoint, creating it if absent,
	// and returns the persisted result
	Upsert(ctx context.Context, tenantID string, update Update) (*models.Checkpoint, error)
}

// Lister is implemented by stores that can enumerate tenants
type Lister interface {
	ListTenants(ctx context.Context) ([]string, error)
}

// Tenant ids double as file names and primary keys
var tenantIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateTenantID rejects ids that are empty, contain path components, or
// fall outside the accepted character set.
func ValidateTenantID(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if strings.Contains(tenantID, "..") {
		return fmt.Errorf("invalid tenant id: contains '..' (path traversal attempt)")
	}
	if filepath.IsAbs(tenantID) || strings.ContainsAny(tenantID, "/\\") {
		return fmt.Errorf("invalid tenant id: must not contain path separators")
	}
	if !tenantIDRegex.MatchString(tenantID) {
		return fmt.Errorf("invalid tenant id format: %q", tenantID)
	}
	return nil
}

// apply runs update on cp (or a fresh checkpoint) and stamps bookkeeping fields
func apply(tenantID string, cp *models.Checkpoint, update Update) *models.Checkpoint {
	if cp == nil {
		cp = models.NewCheckpoint(tenantID)
	}
	cp.Normalize()
	if update != nil {
		update(cp)
	}
	cp.TenantID = tenantID
	cp.Normalize()
	cp.UpdatedAt = time.Now().UTC()
	return cp
}

// MemoryStore keeps checkpoints in process memory
type MemoryStore struct {
	mu          sync.Mutex
	checkpoints map[string]*models.Checkpoint
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string]*models.Checkpoint)}
}

func (s *MemoryStore) Load(_ context.Context, tenantID string) (*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints[tenantID].Clone(), nil
}

func (s *MemoryStore) Upsert(_ context.Context, tenantID string, update Update) (*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := apply(tenantID, s.checkpoints[tenantID].Clone(), update)
	s.checkpoints[tenantID] = cp
	return cp.Clone(), nil
}

func (s *MemoryStore) ListTenants(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.checkpoints))
	for id := range s.checkpoints {
		out = append(out, id)
	}
	return out, nil
}
