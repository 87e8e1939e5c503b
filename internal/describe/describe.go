// Package describe turns non-text question context into text: images into
// captions through a multimodal chat model, and web pages into their main
// readable text.
package describe

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrBadInput reports an image or URL that could not be processed.
var ErrBadInput = errors.New("describe: bad input")

// DefaultPrompt asks the model for a retrieval-friendly caption.
const DefaultPrompt = "Describe this image in two or three sentences. " +
	"Transcribe any visible text, error messages or code exactly."

// Describer captions an image reference: an http(s) URL, a data URL, or raw
// base64 image bytes.
type Describer interface {
	Describe(ctx context.Context, ref string) (string, error)
}

// VisionDescriber captions images with a multimodal chat model.
type VisionDescriber struct {
	model  model.BaseChatModel
	prompt string
}

// NewVisionDescriber returns a VisionDescriber. An empty prompt selects
// DefaultPrompt.
func NewVisionDescriber(m model.BaseChatModel, prompt string) *VisionDescriber {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	return &VisionDescriber{model: m, prompt: prompt}
}

// Describe returns a caption for ref. A reference that is neither a URL nor
// valid base64 yields ErrBadInput without calling the model.
func (d *VisionDescriber) Describe(ctx context.Context, ref string) (string, error) {
	imageURL, err := ImageURL(ref)
	if err != nil {
		return "", err
	}

	msg := &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: d.prompt},
			{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL:    imageURL,
					Detail: schema.ImageURLDetailAuto,
				},
			},
		},
	}

	resp, err := d.model.Generate(ctx, []*schema.Message{msg})
	if err != nil {
		return "", fmt.Errorf("describe: caption request failed: %w", err)
	}
	caption := ""
	if resp != nil {
		caption = strings.TrimSpace(resp.Content)
	}
	if caption == "" {
		return "", fmt.Errorf("describe: model returned an empty caption")
	}
	return caption, nil
}

// ImageURL normalises an image reference into a URL a chat model accepts.
// http(s) and data URLs pass through; anything else is decoded as base64 and
// wrapped in a data URL whose MIME type is sniffed from the bytes.
func ImageURL(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", fmt.Errorf("%w: empty image", ErrBadInput)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return ref, nil
	case strings.HasPrefix(ref, "data:"):
		if !strings.Contains(ref, ";base64,") {
			return "", fmt.Errorf("%w: data URL is not base64 encoded", ErrBadInput)
		}
		return ref, nil
	}

	raw, err := base64.StdEncoding.DecodeString(ref)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(ref); err != nil {
			return "", fmt.Errorf("%w: image is not valid base64: %w", ErrBadInput, err)
		}
	}
	return dataURL(raw)
}

// FileDataURL reads an image file into a data URL.
func FileDataURL(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadInput, err)
	}
	return dataURL(raw)
}

func dataURL(raw []byte) (string, error) {
	mime := http.DetectContentType(raw)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%w: content is %s, not an image", ErrBadInput, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}
