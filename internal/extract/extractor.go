// Package extract turns identity-document files into normalized text via
// an external OCR toolchain (tesseract for recognition, pdftoppm for PDF
// rasterization). When the toolchain is not configured extraction reports
// unavailability and callers degrade to heuristic validation.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"docsign/internal/platform/config"
	"docsign/pkg/platform/sentinel"
)

// Result is the outcome of one extraction.
type Result struct {
	Text     string
	Pages    int
	Warnings []string
}

// Extractor drives the OCR pipeline.
type Extractor struct {
	cfg    config.OCRConfig
	runner Runner
	logger *slog.Logger
}

func New(cfg config.OCRConfig, runner Runner, logger *slog.Logger) *Extractor {
	return &Extractor{cfg: cfg, runner: runner, logger: logger}
}

// Available reports whether the OCR toolchain is configured.
func (e *Extractor) Available() bool {
	return e.cfg.TesseractBin != ""
}

// Extract runs OCR on the file at path. PDFs are rasterized page by page
// first. Returns sentinel.ErrUnavailable when the toolchain is missing.
func (e *Extractor) Extract(ctx context.Context, path string) (Result, error) {
	if !e.Available() {
		return Result{}, fmt.Errorf("ocr toolchain not configured: %w", sentinel.ErrUnavailable)
	}

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		if e.cfg.PdftoppmBin == "" {
			return Result{}, fmt.Errorf("pdf rasterizer not configured: %w", sentinel.ErrUnavailable)
		}
		return e.extractPDF(ctx, path)
	}
	return e.extractImage(ctx, path)
}

func (e *Extractor) extractImage(ctx context.Context, path string) (Result, error) {
	var warnings []string

	ocrInput := path
	if cleaned, err := preprocess(path, e.cfg.TmpDir, e.cfg.MaxDimension); err != nil {
		warnings = append(warnings, fmt.Sprintf("preprocess: %v", err))
		e.logger.Warn("image preprocessing failed, using original", "path", path, "error", err)
	} else {
		ocrInput = cleaned
		defer os.Remove(cleaned)
	}

	text, err := e.tesseract(ctx, ocrInput)
	if err != nil && ocrInput != path {
		// The binarized image can defeat tesseract on unusual scans; retry raw.
		warnings = append(warnings, fmt.Sprintf("ocr on preprocessed image: %v", err))
		text, err = e.tesseract(ctx, path)
	}
	if err != nil {
		return Result{Warnings: warnings}, err
	}

	return Result{Text: Normalize(text), Pages: 1, Warnings: warnings}, nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (Result, error) {
	tmpDir, err := os.MkdirTemp(e.cfg.TmpDir, "docsign-pdf-*")
	if err != nil {
		return Result{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r <dpi> -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.PdftoppmBin, "-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return Result{Warnings: []string{string(errb)}}, fmt.Errorf("pdftoppm: %w", err)
	}

	pages, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(pages)
	if len(pages) == 0 {
		return Result{}, fmt.Errorf("pdftoppm produced no pages for %s", filepath.Base(path))
	}

	var b strings.Builder
	var warnings []string
	for _, page := range pages {
		text, err := e.tesseract(ctx, page)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", filepath.Base(page), err))
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(text)
	}
	if b.Len() == 0 {
		return Result{Pages: len(pages), Warnings: warnings}, fmt.Errorf("ocr recognized no text")
	}

	return Result{Text: Normalize(b.String()), Pages: len(pages), Warnings: warnings}, nil
}

func (e *Extractor) tesseract(ctx context.Context, path string) (string, error) {
	// tesseract <file> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.TesseractBin, path, "stdout", "-l", e.cfg.Language)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 256))
	}
	return string(out), nil
}
