package models

import "time"

// StatusSource tells whether a JobStatus came from a live job or storage
type StatusSource string

const (
	StatusSourceLive       StatusSource = "live"
	StatusSourceCheckpoint StatusSource = "checkpoint"
)

// JobStatus is the read-only snapshot returned by the job status surface
type JobStatus struct {
	TenantID           string          `json:"tenantId"`
	RunID              string          `json:"runId,omitempty"`
	Source             StatusSource    `json:"source"`
	IsRunning          bool            `json:"isRunning"`
	TotalProducts      int             `json:"totalProducts"`
	CompletedProducts  int             `json:"completedProducts"`
	CompletedByType    TypeCounts      `json:"completedByType"`
	ProgressPercent    float64         `json:"progressPercent"`
	SEOTypes           SEOTypes        `json:"seoTypes,omitempty"`
	CurrentProduct     *CurrentProduct `json:"currentProduct"`
	CurrentImage       *ImageState     `json:"currentImage"`
	ProcessedImages    []ImageState    `json:"processedImages"`
	ProductsWithErrors []int64         `json:"productsWithErrors"`
	StopReason         StopReason      `json:"stopReason,omitempty"`
	LastError          string          `json:"lastError,omitempty"`
	APIErrorCount      int             `json:"apiErrorCount"`
	StartedAt          *time.Time      `json:"startedAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}
