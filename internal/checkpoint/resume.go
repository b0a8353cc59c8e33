package checkpoint

import (
	"github.com/lamim/catalogseo/pkg/models"
)

// ResumeMode names the rule that picked the start index
type ResumeMode string

const (
	ResumeExplicit        ResumeMode = "explicit"
	ResumeExplicitMissing ResumeMode = "explicit_missing"
	ResumeFresh           ResumeMode = "fresh"
	ResumeCurrentProduct  ResumeMode = "current_product"
	ResumeLastProduct     ResumeMode = "last_product"
	ResumeProcessedPrefix ResumeMode = "processed_prefix"
	ResumeBeginning       ResumeMode = "beginning"
)

// ResumeRequest carries the (re)start options
type ResumeRequest struct {
	StartFresh         bool
	StartFromProductID *int64
}

// ResumePoint is where a run begins in the catalog
type ResumePoint struct {
	Index             int
	CompletedProducts int
	Mode              ResumeMode
}

// Resolve computes the start index in products (catalog order) for a run.
// products before Index are not scheduled; correctness for anything the
// heuristic gets wrong is covered by the processed-id dedup set.
func Resolve(products []models.Product, cp *models.Checkpoint, req ResumeRequest) ResumePoint {
	if cp == nil {
		cp = models.NewCheckpoint("")
	}
	processed := len(cp.ProcessedProductIDs)

	if req.StartFromProductID != nil {
		// Explicit jumps may skip unprocessed products on purpose, so the
		// completed count comes from the dedup set rather than the index.
		idx := indexOfID(products, *req.StartFromProductID)
		if idx < 0 {
			return ResumePoint{Index: 0, CompletedProducts: processed, Mode: ResumeExplicitMissing}
		}
		return ResumePoint{Index: idx, CompletedProducts: processed, Mode: ResumeExplicit}
	}

	if req.StartFresh {
		return ResumePoint{Index: 0, CompletedProducts: 0, Mode: ResumeFresh}
	}

	if cp.CurrentProduct != nil && cp.CurrentProduct.Title != "" {
		if idx := indexOfTitle(products, cp.CurrentProduct.Title); idx >= 0 {
			return ResumePoint{Index: idx, CompletedProducts: processed, Mode: ResumeCurrentProduct}
		}
	}

	if cp.LastProductID != 0 {
		if idx := indexOfID(products, cp.LastProductID); idx >= 0 {
			return ResumePoint{Index: idx + 1, CompletedProducts: processed, Mode: ResumeLastProduct}
		}
	}

	// No pointer survived: skip the leading run of already processed products
	idx := 0
	for idx < len(products) && cp.ProcessedProductIDs.Has(products[idx].ID) {
		idx++
	}
	if idx > 0 {
		return ResumePoint{Index: idx, CompletedProducts: processed, Mode: ResumeProcessedPrefix}
	}
	return ResumePoint{Index: 0, CompletedProducts: processed, Mode: ResumeBeginning}
}

func indexOfID(products []models.Product, id int64) int {
	for i, p := range products {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func indexOfTitle(products []models.Product, title string) int {
	for i, p := range products {
		if p.Title == title {
			return i
		}
	}
	return -1
}

// GetProgressPercentage returns completion percentage
func GetProgressPercentage(cp *models.Checkpoint) float64 {
	if cp == nil || cp.TotalProducts == 0 {
		return 0.0
	}
	return float64(cp.CompletedProducts) / float64(cp.TotalProducts) * 100.0
}
