// Package grobid provides an HTTP client for the GROBID PDF parsing
// service, which converts scholarly PDFs into TEI XML.
// See: https://github.com/kermitt2/grobid
package grobid

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/fx"

	"github.com/litgraph/litgraph/internal/config"
	"github.com/litgraph/litgraph/pkg/logger"
)

// Module provides the GROBID client as an fx module
var Module = fx.Module("grobid",
	fx.Provide(NewClient),
)

// Client is an HTTP client for the GROBID service
type Client struct {
	httpClient        *http.Client
	baseURL           string
	consolidateHeader bool
	log               *slog.Logger
}

// NewClient creates a new GROBID client
func NewClient(cfg *config.Config, log *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Grobid.Timeout,
		},
		baseURL:           strings.TrimRight(cfg.Grobid.ServiceURL, "/"),
		consolidateHeader: cfg.Grobid.ConsolidateHeader,
		log:               log.With(logger.Scope("grobid")),
	}
}

// Error represents a GROBID service error
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("grobid returned %d: %s", e.StatusCode, e.Detail)
}

// IsAlive checks service health via GET /api/isalive.
func (c *Client) IsAlive(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/isalive", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("grobid health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &Error{StatusCode: resp.StatusCode, Detail: "service not alive"}
	}
	return nil
}

// ProcessFulltext sends a PDF to /api/processFulltextDocument and
// returns the TEI XML. Figure coordinates are requested so downstream
// figure extraction can crop page images.
func (c *Client) ProcessFulltext(ctx context.Context, filename string, pdf []byte) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("input", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(pdf); err != nil {
		return nil, fmt.Errorf("write pdf to form: %w", err)
	}

	consolidate := "0"
	if c.consolidateHeader {
		consolidate = "1"
	}
	if err := writer.WriteField("consolidateHeader", consolidate); err != nil {
		return nil, err
	}
	if err := writer.WriteField("teiCoordinates", "figure"); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/processFulltextDocument", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/xml")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grobid request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read grobid response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, &Error{StatusCode: resp.StatusCode, Detail: "document could not be parsed"}
	default:
		detail := strings.TrimSpace(string(data))
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return nil, &Error{StatusCode: resp.StatusCode, Detail: detail}
	}

	c.log.Debug("pdf parsed",
		slog.String("filename", filename),
		slog.Int("tei_size", len(data)),
		slog.Duration("duration", time.Since(start)),
	)
	return data, nil
}
