package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lamim/catalogseo/internal/catalog"
	"github.com/lamim/catalogseo/internal/generator"
	"github.com/lamim/catalogseo/pkg/models"
)

// optimizeImages replaces every image of a product in catalog order. done is
// true only when every image succeeded (or was already replaced this run).
// One failed image never aborts the others.
func (o *Orchestrator) optimizeImages(ctx context.Context, logger *slog.Logger, product models.Product) (done bool, err error) {
	if len(product.Images) == 0 {
		return true, nil
	}

	// Filenames minted for this product so far, offered to the model as ones to avoid
	var minted []string
	failures := 0
	interrupted := false

	for _, img := range product.Images {
		if o.stopped(ctx) {
			interrupted = true
			break
		}

		imgLogger := logger.With("image_id", img.ID)
		if o.Snapshot().HasProcessedImage(product.ID, img.ID) {
			o.metrics.IncrementImage("skipped")
			imgLogger.Debug("Skipping image, already replaced")
			continue
		}

		state, err := o.optimizeImage(ctx, imgLogger, product, img, minted)
		if errors.Is(err, ErrBreakerTripped) {
			return false, err
		}
		if err != nil {
			failures++
			o.metrics.IncrementImage("error")
			imgLogger.Error("Image optimization failed", "error", err)
			state.Status = models.ImageStatusError
			state.Error = err.Error()
		} else if state.NewFilename != "" {
			minted = append(minted, state.NewFilename)
		}

		state.ProcessedAt = time.Now().UTC()
		o.update(func(cp *models.Checkpoint) {
			cp.CurrentImage = &state
			cp.AddProcessedImage(state, o.cfg.MaxProcessedImages)
		})
		o.flush(ctx)
	}

	if failures > 0 {
		return false, fmt.Errorf("%d of %d images failed", failures, len(product.Images))
	}
	return !interrupted, nil
}

// optimizeImage replaces one image: new alt text and filename are generated,
// a new image is uploaded from the original source URL, variants are moved
// to it and the old image is deleted.
func (o *Orchestrator) optimizeImage(ctx context.Context, logger *slog.Logger, product models.Product, img models.Image, avoid []string) (models.ImageState, error) {
	state := models.ImageState{
		ID:           img.ID,
		ProductID:    product.ID,
		ProductTitle: product.Title,
		Src:          img.Src,
		VariantIDs:   img.VariantIDs,
		Status:       models.ImageStatusProcessing,
		OldImageID:   img.ID,
	}

	o.update(func(cp *models.Checkpoint) {
		current := state
		cp.CurrentImage = &current
	})

	// Download
	data, mediaType, err := o.downloader.Download(ctx, img.Src)
	if err != nil {
		return state, err
	}

	// Generate alt text and filename
	parts, err := o.prompts.ImageMetadataParts(product, mediaType, data, avoid)
	if err != nil {
		return state, err
	}
	reply, err := o.generate(ctx, parts)
	if err != nil {
		return state, err
	}
	meta, err := generator.ParseImageMetadata(reply)
	if err != nil {
		return state, err
	}
	state.NewAltText = meta.AltText
	state.NewFilename = meta.Filename

	// Remove duplicates left behind by earlier partial runs
	detail, err := o.catalog.GetProductDetail(ctx, product.ID)
	if err != nil {
		return state, fmt.Errorf("failed to fetch product images: %w", err)
	}
	for _, existing := range detail.Images {
		if existing.ID == img.ID {
			continue
		}
		if existing.Src == img.Src || existing.Alt == meta.AltText {
			logger.Info("Deleting duplicate image", "duplicate_id", existing.ID, "alt", existing.Alt)
			if err := o.catalog.DeleteImage(ctx, product.ID, existing.ID); err != nil && !catalog.IsNotFound(err) {
				return state, fmt.Errorf("failed to delete duplicate image %d: %w", existing.ID, err)
			}
		}
	}

	// Upload from the original source URL
	uploaded, err := o.catalog.UploadImage(ctx, product.ID, img.Src, meta.AltText, meta.Filename+".jpg")
	if err != nil {
		return state, fmt.Errorf("failed to upload image: %w", err)
	}
	state.NewImageID = uploaded.ID
	state.NewImageSrc = uploaded.Src

	// Move variants before the old image goes away
	detail, err = o.catalog.GetProductDetail(ctx, product.ID)
	if err != nil {
		return state, fmt.Errorf("failed to fetch product variants: %w", err)
	}
	moved := 0
	for _, v := range detail.Variants {
		if v.ImageID == nil || *v.ImageID != img.ID {
			continue
		}
		if err := o.catalog.UpdateVariantImage(ctx, product.ID, v.ID, uploaded.ID); err != nil {
			return state, fmt.Errorf("failed to move variant %d: %w", v.ID, err)
		}
		moved++
	}

	// Delete the old image if it still exists
	if containsImage(detail.Images, img.ID) {
		if err := o.catalog.DeleteImage(ctx, product.ID, img.ID); err != nil && !catalog.IsNotFound(err) {
			return state, fmt.Errorf("failed to delete old image: %w", err)
		}
	} else {
		logger.Debug("Old image already removed")
	}

	state.Status = models.ImageStatusCompleted
	o.metrics.IncrementImage("completed")
	logger.Info("Replaced image",
		"new_image_id", uploaded.ID,
		"alt", meta.AltText,
		"filename", meta.Filename,
		"variants_moved", moved)
	return state, nil
}

func containsImage(images []models.Image, id int64) bool {
	for _, img := range images {
		if img.ID == id {
			return true
		}
	}
	return false
}
