package checkpoint

import (
	"testing"

	"github.com/lamim/catalogseo/pkg/models"
)

func catalogOf(ids ...int64) []models.Product {
	products := make([]models.Product, len(ids))
	for i, id := range ids {
		products[i] = models.Product{ID: id, Title: "Product " + string(rune('A'+i))}
	}
	return products
}

func int64Ptr(v int64) *int64 { return &v }

func TestResolveSkipsProcessedPrefix(t *testing.T) {
	products := catalogOf(1, 2, 3, 4, 5)
	cp := models.NewCheckpoint("shop")
	cp.MarkProductComplete(1)
	cp.MarkProductComplete(2)

	point := Resolve(products, cp, ResumeRequest{})

	if point.Index != 2 {
		t.Fatalf("Expected start index 2, got %d", point.Index)
	}
	if products[point.Index].ID != 3 {
		t.Errorf("Expected to resume at product 3, got %d", products[point.Index].ID)
	}
	if point.CompletedProducts != 2 {
		t.Errorf("Expected completed 2, got %d", point.CompletedProducts)
	}
}

func TestResolveExplicitStart(t *testing.T) {
	products := catalogOf(1, 2, 3, 4, 5)
	cp := models.NewCheckpoint("shop")
	cp.MarkProductComplete(1)
	cp.MarkProductComplete(2)
	cp.CurrentProduct = &models.CurrentProduct{ID: 2, Title: products[1].Title}

	point := Resolve(products, cp, ResumeRequest{StartFromProductID: int64Ptr(4)})

	if point.Index != 3 {
		t.Fatalf("Expected start index 3, got %d", point.Index)
	}
	if point.CompletedProducts != 2 {
		t.Errorf("Expected completed to equal processed set size 2, got %d", point.CompletedProducts)
	}
	if point.Mode != ResumeExplicit {
		t.Errorf("Expected mode %q, got %q", ResumeExplicit, point.Mode)
	}
}

func TestResolveExplicitStartMissing(t *testing.T) {
	products := catalogOf(1, 2, 3)
	cp := models.NewCheckpoint("shop")
	cp.MarkProductComplete(1)

	point := Resolve(products, cp, ResumeRequest{StartFromProductID: int64Ptr(99)})

	if point.Index != 0 {
		t.Errorf("Expected fallback index 0, got %d", point.Index)
	}
	if point.Mode != ResumeExplicitMissing {
		t.Errorf("Expected mode %q, got %q", ResumeExplicitMissing, point.Mode)
	}
	if point.CompletedProducts != 1 {
		t.Errorf("Expected completed 1, got %d", point.CompletedProducts)
	}
}

func TestResolvePointers(t *testing.T) {
	products := catalogOf(10, 20, 30, 40)

	tests := []struct {
		name      string
		setup     func(cp *models.Checkpoint)
		req       ResumeRequest
		wantIndex int
		wantMode  ResumeMode
	}{
		{
			name: "current product title",
			setup: func(cp *models.Checkpoint) {
				cp.CurrentProduct = &models.CurrentProduct{ID: 30, Title: products[2].Title}
				cp.LastProductID = 10
			},
			wantIndex: 2,
			wantMode:  ResumeCurrentProduct,
		},
		{
			name: "last product id",
			setup: func(cp *models.Checkpoint) {
				cp.LastProductID = 20
			},
			wantIndex: 2,
			wantMode:  ResumeLastProduct,
		},
		{
			name: "unknown title falls through to last product",
			setup: func(cp *models.Checkpoint) {
				cp.CurrentProduct = &models.CurrentProduct{ID: 99, Title: "Renamed"}
				cp.LastProductID = 30
			},
			wantIndex: 3,
			wantMode:  ResumeLastProduct,
		},
		{
			name:      "empty checkpoint",
			setup:     func(cp *models.Checkpoint) {},
			wantIndex: 0,
			wantMode:  ResumeBeginning,
		},
		{
			name: "fresh ignores pointers",
			setup: func(cp *models.Checkpoint) {
				cp.LastProductID = 30
				cp.MarkProductComplete(10)
			},
			req:       ResumeRequest{StartFresh: true},
			wantIndex: 0,
			wantMode:  ResumeFresh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := models.NewCheckpoint("shop")
			tt.setup(cp)

			point := Resolve(products, cp, tt.req)
			if point.Index != tt.wantIndex {
				t.Errorf("Expected index %d, got %d", tt.wantIndex, point.Index)
			}
			if point.Mode != tt.wantMode {
				t.Errorf("Expected mode %q, got %q", tt.wantMode, point.Mode)
			}
		})
	}
}

func TestResolveLastProductAtEnd(t *testing.T) {
	products := catalogOf(1, 2)
	cp := models.NewCheckpoint("shop")
	cp.LastProductID = 2

	point := Resolve(products, cp, ResumeRequest{})
	if point.Index != len(products) {
		t.Errorf("Expected index past the end (%d), got %d", len(products), point.Index)
	}
}

func TestResolveNilCheckpoint(t *testing.T) {
	point := Resolve(catalogOf(1, 2), nil, ResumeRequest{})
	if point.Index != 0 || point.CompletedProducts != 0 {
		t.Errorf("Expected zero resume point, got %+v", point)
	}
}

func TestGetProgressPercentage(t *testing.T) {
	tests := []struct {
		name        string
		total       int
		completed   int
		expectedPct float64
	}{
		{"0%", 100, 0, 0.0},
		{"50%", 100, 50, 50.0},
		{"100%", 100, 100, 100.0},
		{"Empty", 0, 0, 0.0},
		{"Partial", 77, 23, 29.87}, // 23/77 * 100
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := &models.Checkpoint{
				TotalProducts:     tt.total,
				CompletedProducts: tt.completed,
			}

			pct := GetProgressPercentage(cp)
			if pct < tt.expectedPct-0.1 || pct > tt.expectedPct+0.1 {
				t.Errorf("Expected ~%.2f%%, got %.2f%%", tt.expectedPct, pct)
			}
		})
	}
}
