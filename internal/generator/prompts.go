// Package generator builds prompts for the content generation service and
// parses its labeled replies into catalog-ready values.
package generator

import (
	"fmt"
	"strings"

	"github.com/lamim/catalogseo/internal/api"
	"github.com/lamim/catalogseo/internal/config"
	"github.com/lamim/catalogseo/internal/util"
	"github.com/lamim/catalogseo/pkg/models"
)

// Prompts renders the image metadata and product content prompts
type Prompts struct {
	templates            config.PromptTemplates
	maxTitleLength       int
	minDescriptionLength int
}

// New validates both templates and returns a prompt builder
func New(templates config.PromptTemplates, pipeline config.PipelineConfig) (*Prompts, error) {
	if err := util.ValidateTemplate(templates.ImageMetadata); err != nil {
		return nil, fmt.Errorf("image_metadata template: %w", err)
	}
	if err := util.ValidateTemplate(templates.ProductContent); err != nil {
		return nil, fmt.Errorf("product_content template: %w", err)
	}
	return &Prompts{
		templates:            templates,
		maxTitleLength:       pipeline.MaxTitleLength,
		minDescriptionLength: pipeline.MinDescriptionLength,
	}, nil
}

// ImageMetadataParts builds the prompt for one image. avoid lists filenames
// already used by the product's other images.
func (p *Prompts) ImageMetadataParts(product models.Product, mediaType string, image []byte, avoid []string) ([]api.Part, error) {
	text, err := util.RenderTemplate(p.templates.ImageMetadata, map[string]interface{}{
		"ProductTitle":       product.Title,
		"ProductDescription": product.BodyHTML,
		"AvoidFilenames":     strings.Join(avoid, ", "),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render image prompt: %w", err)
	}
	return []api.Part{api.TextPart(text), api.ImagePart(mediaType, image)}, nil
}

// ContentParts builds the title and description prompt. image may be nil,
// in which case the prompt is sent as text only.
func (p *Prompts) ContentParts(product models.Product, mediaType string, image []byte) ([]api.Part, error) {
	text, err := util.RenderTemplate(p.templates.ProductContent, map[string]interface{}{
		"ProductTitle":         product.Title,
		"ProductDescription":   product.BodyHTML,
		"MaxTitleLength":       p.maxTitleLength,
		"MinDescriptionLength": p.minDescriptionLength,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render content prompt: %w", err)
	}
	parts := []api.Part{api.TextPart(text)}
	if len(image) > 0 {
		parts = append(parts, api.ImagePart(mediaType, image))
	}
	return parts, nil
}
