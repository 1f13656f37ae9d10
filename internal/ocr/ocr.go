package ocr

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
)

var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".pdf":  true,
}

// Engine extracts text from receipt files: Tesseract for images, MuPDF text
// extraction for PDFs. An empty result is returned as-is; deciding whether
// empty text is an error belongs to the caller.
type Engine struct {
	language string
	logger   *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		language: "eng",
		logger:   logger,
	}
}

func (e *Engine) ExtractText(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return "", fmt.Errorf("unsupported file format: %s", ext)
	}

	var (
		text string
		err  error
	)
	if ext == ".pdf" {
		text, err = e.extractFromPDF(path)
	} else {
		text, err = e.extractFromImage(path)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)

	e.logger.Info("OCR extraction completed",
		zap.String("file", path),
		zap.String("method", methodForExt(ext)),
		zap.Int("text_length", len(text)),
	)

	return text, nil
}

func (e *Engine) extractFromImage(path string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.language); err != nil {
		return "", fmt.Errorf("set OCR language: %w", err)
	}
	if err := client.SetImage(path); err != nil {
		return "", fmt.Errorf("load image for OCR: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract extraction: %w", err)
	}

	return text, nil
}

func (e *Engine) extractFromPDF(path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	defer doc.Close()

	var builder strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			e.logger.Warn("Failed to extract text from page",
				zap.Int("page", i+1),
				zap.String("file", path),
				zap.Error(err),
			)
			continue
		}
		if pageText != "" {
			builder.WriteString(pageText)
			builder.WriteString("\n")
		}
	}

	return builder.String(), nil
}

func methodForExt(ext string) string {
	if ext == ".pdf" {
		return "go-fitz"
	}
	return "tesseract"
}
