package jobs

import (
	"github.com/lamim/catalogseo/internal/checkpoint"
	"github.com/lamim/catalogseo/pkg/models"
)

// projectFromLive builds the status of a registered job
func projectFromLive(cp *models.Checkpoint) models.JobStatus {
	return project(cp, models.StatusSourceLive)
}

// projectFromCheckpoint builds the status from the persisted record
func projectFromCheckpoint(cp *models.Checkpoint) models.JobStatus {
	return project(cp, models.StatusSourceCheckpoint)
}

func project(cp *models.Checkpoint, source models.StatusSource) models.JobStatus {
	if cp == nil {
		cp = models.NewCheckpoint("")
	}
	status := models.JobStatus{
		TenantID:           cp.TenantID,
		RunID:              cp.RunID,
		Source:             source,
		IsRunning:          cp.IsRunning,
		TotalProducts:      cp.TotalProducts,
		CompletedProducts:  cp.CompletedProducts,
		CompletedByType:    cp.CompletedByType,
		ProgressPercent:    checkpoint.GetProgressPercentage(cp),
		SEOTypes:           cp.SEOTypes,
		ProcessedImages:    cp.ProcessedImages,
		ProductsWithErrors: cp.ProductsWithErrors.Sorted(),
		StopReason:         cp.StopReason,
		LastError:          cp.LastError,
		APIErrorCount:      cp.APIErrorCount,
		StartedAt:          cp.StartedAt,
		UpdatedAt:          cp.UpdatedAt,
	}
	// The live pointers only mean something while a job runs
	if cp.IsRunning {
		status.CurrentProduct = cp.CurrentProduct
		status.CurrentImage = cp.CurrentImage
	}
	if status.ProcessedImages == nil {
		status.ProcessedImages = []models.ImageState{}
	}
	return status
}
