package api

import (
	"encoding/base64"
	"strings"
)

// GenerateContentRequest is a Gemini-style generateContent request
type GenerateContentRequest struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"system_instruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// GenerationConfig carries sampling settings
type GenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// Content is one turn made of ordered parts
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is either text or inline binary data
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// InlineData is base64 encoded media sent alongside the prompt
type InlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// TextPart builds a text prompt part
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart builds an inline image part; an empty mimeType defaults to JPEG
func ImagePart(mimeType string, data []byte) Part {
	if mimeType == "" || !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/jpeg"
	}
	return Part{InlineData: &InlineData{
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}}
}

// GenerateContentResponse is a Gemini-style generateContent response
type GenerateContentResponse struct {
	Candidates     []Candidate     `json:"candidates"`
	UsageMetadata  UsageMetadata   `json:"usageMetadata"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
}

// Candidate is one generated answer
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

// UsageMetadata represents token usage information
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// PromptFeedback is set when the prompt itself was blocked
type PromptFeedback struct {
	BlockReason string `json:"blockReason"`
}

// Text returns the concatenated text parts of the first candidate
func (r *GenerateContentResponse) Text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
