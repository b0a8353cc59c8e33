package generator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/lamim/catalogseo/internal/util"
)

var (
	// ErrInvalidReply means the reply lacked the expected labeled fields
	ErrInvalidReply = errors.New("invalid generator reply")
	// ErrValidation means the fields were present but out of bounds
	ErrValidation = errors.New("generated content failed validation")
)

var (
	imageMetadataRegex  = regexp.MustCompile(`(?i)AltText:\s*(.*?)\s*\nFilename:\s*(.*)`)
	contentRegex        = regexp.MustCompile(`(?is)Optimized Title:\s*(.*?)\s*\n\s*Optimized Description:\s*(.*)`)
	whitespaceRegex     = regexp.MustCompile(`\s+`)
	filenameCharsRegex  = regexp.MustCompile(`[^a-zA-Z0-9-]`)
	imageExtensionRegex = regexp.MustCompile(`(?i)\.(jpe?g|png|webp|gif)$`)
)

// ImageMetadata is the parsed reply for one image
type ImageMetadata struct {
	AltText  string
	Filename string // sanitized, without extension
}

// ProductContent is the parsed reply for a product rewrite
type ProductContent struct {
	Title           string
	DescriptionHTML string
}

// ParseImageMetadata extracts the AltText and Filename fields
func ParseImageMetadata(reply string) (ImageMetadata, error) {
	m := imageMetadataRegex.FindStringSubmatch(util.CleanReply(reply))
	if m == nil {
		return ImageMetadata{}, fmt.Errorf("%w: missing AltText/Filename labels", ErrInvalidReply)
	}

	alt := strings.TrimSpace(m[1])
	filename := SanitizeFilename(m[2])
	if alt == "" || filename == "" {
		return ImageMetadata{}, fmt.Errorf("%w: empty alt text or filename", ErrInvalidReply)
	}
	return ImageMetadata{AltText: alt, Filename: filename}, nil
}

// SanitizeFilename turns whitespace into hyphens, drops everything outside
// [a-zA-Z0-9-] and lowercases the result. A trailing image extension is
// removed first.
func SanitizeFilename(name string) string {
	name = imageExtensionRegex.ReplaceAllString(strings.TrimSpace(name), "")
	name = whitespaceRegex.ReplaceAllString(name, "-")
	name = filenameCharsRegex.ReplaceAllString(name, "")
	return strings.ToLower(name)
}

// ParseProductContent extracts the Optimized Title and Optimized Description fields
func ParseProductContent(reply string) (ProductContent, error) {
	m := contentRegex.FindStringSubmatch(util.CleanReply(reply))
	if m == nil {
		return ProductContent{}, fmt.Errorf("%w: missing Optimized Title/Optimized Description labels", ErrInvalidReply)
	}
	return ProductContent{
		Title:           strings.Trim(strings.TrimSpace(m[1]), `"'`),
		DescriptionHTML: strings.TrimSpace(m[2]),
	}, nil
}

// ValidateContent checks the title and description bounds
func (p *Prompts) ValidateContent(c ProductContent) error {
	titleLen := utf8.RuneCountInString(c.Title)
	if titleLen == 0 {
		return fmt.Errorf("%w: empty title", ErrValidation)
	}
	if p.maxTitleLength > 0 && titleLen > p.maxTitleLength {
		return fmt.Errorf("%w: title is %d characters (max %d)", ErrValidation, titleLen, p.maxTitleLength)
	}
	if descLen := utf8.RuneCountInString(c.DescriptionHTML); descLen < p.minDescriptionLength {
		return fmt.Errorf("%w: description is %d characters (min %d)", ErrValidation, descLen, p.minDescriptionLength)
	}
	return nil
}
