package checkpoint

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamim/catalogseo/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type storeFactory func(t *testing.T) interface {
	Store
	Lister
}

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) interface {
			Store
			Lister
		} {
			return NewMemoryStore()
		},
		"file": func(t *testing.T) interface {
			Store
			Lister
		} {
			s, err := NewFileStore(t.TempDir(), testLogger())
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) interface {
			Store
			Lister
		} {
			db, err := OpenDB("sqlite", filepath.Join(t.TempDir(), "checkpoints.db"))
			require.NoError(t, err)
			s, err := NewSQLStore(db, testLogger())
			require.NoError(t, err)
			return s
		},
	}
}

func TestStoreLoadMissing(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			cp, err := store.Load(context.Background(), "unknown-shop")
			require.NoError(t, err)
			assert.Nil(t, cp)
		})
	}
}

func TestStoreUpsertRoundTrip(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			saved, err := store.Upsert(ctx, "shop-a", func(cp *models.Checkpoint) {
				cp.TotalProducts = 5
				cp.IsRunning = true
				cp.SEOTypes = models.SEOTypes{models.SEOTypeContent}
				cp.MarkTypeComplete(11, models.SEOTypeContent)
				cp.MarkProductComplete(11)
				cp.RecordProductError(12, models.OptimizationDetail{Error: "boom"})
			})
			require.NoError(t, err)
			assert.Equal(t, "shop-a", saved.TenantID)
			assert.False(t, saved.UpdatedAt.IsZero())

			loaded, err := store.Load(ctx, "shop-a")
			require.NoError(t, err)
			require.NotNil(t, loaded)

			assert.Equal(t, 5, loaded.TotalProducts)
			assert.Equal(t, 1, loaded.CompletedProducts)
			assert.True(t, loaded.IsRunning)
			assert.True(t, loaded.ProcessedProductIDs.Has(11))
			assert.True(t, loaded.ProductsWithErrors.Has(12))
			assert.Equal(t, "boom", loaded.OptimizationDetails[12].Error)
			assert.Equal(t, 1, loaded.CompletedByType.Content)
			assert.Equal(t, 0, loaded.CompletedByType.Images)
		})
	}
}

func TestStoreUpsertMergesUpdates(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			_, err := store.Upsert(ctx, "shop-b", func(cp *models.Checkpoint) {
				cp.MarkProductComplete(1)
			})
			require.NoError(t, err)

			_, err = store.Upsert(ctx, "shop-b", func(cp *models.Checkpoint) {
				cp.MarkProductComplete(1)
				cp.MarkProductComplete(2)
				cp.LastError = "stopped"
			})
			require.NoError(t, err)

			loaded, err := store.Load(ctx, "shop-b")
			require.NoError(t, err)
			assert.Equal(t, 2, loaded.CompletedProducts)
			assert.Equal(t, []int64{1, 2}, loaded.ProcessedProductIDs.Sorted())
			assert.Equal(t, "stopped", loaded.LastError)
		})
	}
}

func TestStoreListTenants(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)
			for _, id := range []string{"shop-c", "shop-a", "shop-b"} {
				_, err := store.Upsert(ctx, id, nil)
				require.NoError(t, err)
			}

			ids, err := store.ListTenants(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"shop-a", "shop-b", "shop-c"}, ids)
		})
	}
}

func TestStoreLoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.Upsert(ctx, "shop", func(cp *models.Checkpoint) { cp.MarkProductComplete(1) })
	require.NoError(t, err)

	loaded, err := store.Load(ctx, "shop")
	require.NoError(t, err)
	loaded.MarkProductComplete(2)

	again, err := store.Load(ctx, "shop")
	require.NoError(t, err)
	assert.False(t, again.ProcessedProductIDs.Has(2))
}

func TestMemoryStoreConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, _ = store.Upsert(ctx, "shop", func(cp *models.Checkpoint) { cp.MarkProductComplete(id) })
		}(int64(i))
	}
	wg.Wait()

	loaded, err := store.Load(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, 50, loaded.CompletedProducts)
	assert.Len(t, loaded.ProcessedProductIDs, 50)
}

func TestFileStoreAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, testLogger())
	require.NoError(t, err)

	_, err = store.Upsert(context.Background(), "shop", func(cp *models.Checkpoint) { cp.TotalProducts = 3 })
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "shop"+checkpointExt))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "shop"+checkpointExt+".tmp"))
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
}

func TestFileStoreRejectsBadTenant(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	_, err = store.Upsert(context.Background(), "../escape", nil)
	assert.Error(t, err)
	_, err = store.Load(context.Background(), "a/b")
	assert.Error(t, err)
}

func TestValidateTenantID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "my-shop", false},
		{"dotted", "my-shop.myshopify.com", false},
		{"underscore", "shop_01", false},
		{"empty", "", true},
		{"traversal", "..", true},
		{"embedded traversal", "shop..evil", true},
		{"slash", "shop/evil", true},
		{"backslash", `shop\evil`, true},
		{"absolute", "/etc/passwd", true},
		{"leading dash", "-shop", true},
		{"space", "my shop", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTenantID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTenantID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}
