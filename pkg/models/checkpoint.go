package models

import (
	"encoding/json"
	"sort"
	"time"
)

// DefaultMaxProcessedImages is the capacity of the recent-image buffer
const DefaultMaxProcessedImages = 8

// ImageStatus is the optimization state of a single image
type ImageStatus string

const (
	ImageStatusPending    ImageStatus = "pending"
	ImageStatusProcessing ImageStatus = "processing"
	ImageStatusCompleted  ImageStatus = "completed"
	ImageStatusError      ImageStatus = "error"
)

// StopReason records why the last run ended
type StopReason string

const (
	StopReasonNone      StopReason = ""
	StopReasonCompleted StopReason = "completed"
	StopReasonStopped   StopReason = "stopped"
	StopReasonBreaker   StopReason = "breaker"
	StopReasonFailed    StopReason = "failed"
)

// IDSet is a set of catalog ids. It serializes as a sorted JSON array.
type IDSet map[int64]struct{}

// NewIDSet builds a set from ids
func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id and reports whether it was newly added
func (s IDSet) Add(id int64) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Has reports membership
func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in ascending order
func (s IDSet) Sorted() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy
func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}

// TypeSets tracks per-optimization-type completion
type TypeSets struct {
	Images  IDSet `json:"images"`
	Content IDSet `json:"content"`
}

// TypeCounts are derived from TypeSets and never incremented independently
type TypeCounts struct {
	Images  int `json:"images"`
	Content int `json:"content"`
}

// CurrentProduct is the live pointer to the in-flight product
type CurrentProduct struct {
	ID       int64    `json:"id"`
	Title    string   `json:"title"`
	SEOTypes SEOTypes `json:"seoTypes"`
}

// ImageState is the outcome (or in-flight state) of one image optimization
type ImageState struct {
	ID           int64       `json:"id"`
	ProductID    int64       `json:"productId"`
	ProductTitle string      `json:"productTitle,omitempty"`
	Src          string      `json:"src"`
	VariantIDs   []int64     `json:"variantIds,omitempty"`
	Status       ImageStatus `json:"status"`
	OldImageID   int64       `json:"oldImageId,omitempty"`
	NewImageID   int64       `json:"newImageId,omitempty"`
	NewImageSrc  string      `json:"newImageSrc,omitempty"`
	NewAltText   string      `json:"newAltText,omitempty"`
	NewFilename  string      `json:"newFilename,omitempty"`
	Error        string      `json:"error,omitempty"`
	ProcessedAt  time.Time   `json:"processedAt"`
}

// OptimizationDetail explains why a product ended up in ProductsWithErrors
type OptimizationDetail struct {
	Error          string    `json:"error"`
	AttemptedTypes SEOTypes  `json:"attemptedTypes"`
	FailedTypes    SEOTypes  `json:"failedTypes,omitempty"`
	At             time.Time `json:"at"`
}

// Checkpoint is the durable per-tenant record of job progress
type Checkpoint struct {
	TenantID string `json:"tenantId"`
	RunID    string `json:"runId,omitempty"`

	TotalProducts     int `json:"totalProducts"`
	CompletedProducts int `json:"completedProducts"`

	// ProcessedProductIDs is the authoritative dedup set
	ProcessedProductIDs     IDSet      `json:"processedProductIds"`
	ProcessedProductsByType TypeSets   `json:"processedProductsByType"`
	CompletedByType         TypeCounts `json:"completedByType"`

	CurrentProduct *CurrentProduct `json:"currentProduct"`
	CurrentImage   *ImageState     `json:"currentImage"`
	LastProductID  int64           `json:"lastProductId,omitempty"`

	ProcessedImages     []ImageState                 `json:"processedImages"`
	ProductsWithErrors  IDSet                        `json:"productsWithErrors"`
	OptimizationDetails map[int64]OptimizationDetail `json:"optimizationDetails,omitempty"`

	SEOTypes      SEOTypes   `json:"seoTypes,omitempty"`
	IsRunning     bool       `json:"isRunning"`
	StopReason    StopReason `json:"stopReason,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
	APIErrorCount int        `json:"apiErrorCount"`
	StartedAt     *time.Time `json:"startedAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// NewCheckpoint returns the zero-state checkpoint for a tenant
func NewCheckpoint(tenantID string) *Checkpoint {
	cp := &Checkpoint{TenantID: tenantID}
	cp.ensure()
	return cp
}

// ensure allocates nil sets so callers never write into a nil map
func (c *Checkpoint) ensure() {
	if c.ProcessedProductIDs == nil {
		c.ProcessedProductIDs = IDSet{}
	}
	if c.ProcessedProductsByType.Images == nil {
		c.ProcessedProductsByType.Images = IDSet{}
	}
	if c.ProcessedProductsByType.Content == nil {
		c.ProcessedProductsByType.Content = IDSet{}
	}
	if c.ProductsWithErrors == nil {
		c.ProductsWithErrors = IDSet{}
	}
	if c.OptimizationDetails == nil {
		c.OptimizationDetails = make(map[int64]OptimizationDetail)
	}
}

// Normalize allocates missing sets and recomputes derived counts
func (c *Checkpoint) Normalize() {
	c.ensure()
	c.Recount()
}

// Recount derives CompletedByType from the per-type sets
func (c *Checkpoint) Recount() {
	c.CompletedByType = TypeCounts{
		Images:  len(c.ProcessedProductsByType.Images),
		Content: len(c.ProcessedProductsByType.Content),
	}
}

// ResetProgress clears all progress sets and counters (fresh run)
func (c *Checkpoint) ResetProgress() {
	c.TotalProducts = 0
	c.CompletedProducts = 0
	c.ProcessedProductIDs = IDSet{}
	c.ProcessedProductsByType = TypeSets{Images: IDSet{}, Content: IDSet{}}
	c.ProductsWithErrors = IDSet{}
	c.OptimizationDetails = make(map[int64]OptimizationDetail)
	c.ProcessedImages = nil
	c.CurrentProduct = nil
	c.CurrentImage = nil
	c.LastProductID = 0
	c.Recount()
}

// TypeDone reports whether productID has completed optimization type t
func (c *Checkpoint) TypeDone(productID int64, t SEOType) bool {
	switch t {
	case SEOTypeImages:
		return c.ProcessedProductsByType.Images.Has(productID)
	case SEOTypeContent:
		return c.ProcessedProductsByType.Content.Has(productID)
	}
	return false
}

// MarkTypeComplete records productID as done for type t
func (c *Checkpoint) MarkTypeComplete(productID int64, t SEOType) {
	c.ensure()
	switch t {
	case SEOTypeImages:
		c.ProcessedProductsByType.Images.Add(productID)
	case SEOTypeContent:
		c.ProcessedProductsByType.Content.Add(productID)
	}
	c.Recount()
}

// MarkProductComplete adds productID to the dedup set. CompletedProducts is
// incremented only when the id was not already present.
func (c *Checkpoint) MarkProductComplete(productID int64) bool {
	c.ensure()
	if !c.ProcessedProductIDs.Add(productID) {
		return false
	}
	c.CompletedProducts++
	return true
}

// RecordProductError adds productID to ProductsWithErrors with details
func (c *Checkpoint) RecordProductError(productID int64, detail OptimizationDetail) {
	c.ensure()
	c.ProductsWithErrors.Add(productID)
	c.OptimizationDetails[productID] = detail
}

// AddProcessedImage inserts state into the recent-image buffer, keeping at
// most capacity entries sorted by ProcessedAt descending and unique by id.
func (c *Checkpoint) AddProcessedImage(state ImageState, capacity int) {
	if capacity <= 0 {
		capacity = DefaultMaxProcessedImages
	}
	out := make([]ImageState, 0, len(c.ProcessedImages)+1)
	out = append(out, state)
	for _, existing := range c.ProcessedImages {
		if existing.ID == state.ID {
			continue
		}
		out = append(out, existing)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ProcessedAt.After(out[j].ProcessedAt)
	})
	if len(out) > capacity {
		out = out[:capacity]
	}
	c.ProcessedImages = out
}

// HasProcessedImage reports whether the recent buffer already holds a
// completed replacement for oldImageID on productID.
func (c *Checkpoint) HasProcessedImage(productID, oldImageID int64) bool {
	for _, img := range c.ProcessedImages {
		if img.Status == ImageStatusCompleted && img.ProductID == productID && img.OldImageID == oldImageID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	cp := *c
	cp.ProcessedProductIDs = c.ProcessedProductIDs.Clone()
	cp.ProcessedProductsByType = TypeSets{
		Images:  c.ProcessedProductsByType.Images.Clone(),
		Content: c.ProcessedProductsByType.Content.Clone(),
	}
	cp.ProductsWithErrors = c.ProductsWithErrors.Clone()
	cp.OptimizationDetails = make(map[int64]OptimizationDetail, len(c.OptimizationDetails))
	for k, v := range c.OptimizationDetails {
		cp.OptimizationDetails[k] = v
	}
	cp.ProcessedImages = append([]ImageState(nil), c.ProcessedImages...)
	cp.SEOTypes = append(SEOTypes(nil), c.SEOTypes...)
	if c.CurrentProduct != nil {
		cur := *c.CurrentProduct
		cur.SEOTypes = append(SEOTypes(nil), c.CurrentProduct.SEOTypes...)
		cp.CurrentProduct = &cur
	}
	if c.CurrentImage != nil {
		img := *c.CurrentImage
		cp.CurrentImage = &img
	}
	if c.StartedAt != nil {
		t := *c.StartedAt
		cp.StartedAt = &t
	}
	return &cp
}
