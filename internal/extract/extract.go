package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"

	"github.com/mohammad-safakhou/docchat/config"
)

// ErrUnsupportedFormat means no extractor can turn this file into text.
// The upload is rejected; nothing reaches the index.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extractor turns uploaded files into plain text for the RAG pipeline.
// Plain-text and HTML formats are handled in-process; everything else is
// forwarded to an external extraction service when one is configured.
type Extractor struct {
	serviceURL string
	client     *http.Client
}

func New(cfg config.ExtractConfig) *Extractor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Extractor{
		serviceURL: strings.TrimRight(cfg.ServiceURL, "/"),
		client:     &http.Client{Timeout: timeout},
	}
}

// Extract returns the plain text of one uploaded file. The filename's
// extension picks the decoder.
func (e *Extractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".markdown", ".log", ".csv", "":
		return decodeText(data), nil
	case ".html", ".htm":
		return e.extractHTML(filename, data)
	default:
		if e.serviceURL == "" {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
		}
		return e.extractRemote(ctx, filename, data)
	}
}

// decodeText treats the bytes as UTF-8, dropping any invalid sequences so
// a file with a stray BOM or encoding glitch still ingests.
func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}

// extractHTML pulls the readable article body out of an HTML document,
// skipping navigation, scripts and boilerplate.
func (e *Extractor) extractHTML(filename string, data []byte) (string, error) {
	pageURL := &url.URL{Scheme: "file", Path: filename}
	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		return "", fmt.Errorf("extracting html %q: %w", filename, err)
	}
	return article.TextContent, nil
}

// extractRemote hands the file to the external extraction service, which
// owns the heavy parsers (PDF, DOCX, OCR for screenshots).
func (e *Extractor) extractRemote(ctx context.Context, filename string, data []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/extract?filename=%s", e.serviceURL, url.QueryEscape(filename))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("extraction service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnsupportedMediaType {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("extraction service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	text, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return "", fmt.Errorf("reading extraction response: %w", err)
	}
	return decodeText(text), nil
}
