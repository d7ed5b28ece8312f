package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bilimevi/contractgate/backend/config"
	"github.com/bilimevi/contractgate/backend/model"
	"github.com/bilimevi/contractgate/backend/pkg/logger"
)

// DocumentService downloads contract documents from wherever the backend
// says they are hosted. The host's Content-Type is ignored.
type DocumentService struct {
	httpClient   *http.Client
	timeout      time.Duration
	maxBytes     int64
	previewChars int
}

func NewDocumentService(cfg *config.DocumentsConfig, upstream *config.UpstreamConfig) *DocumentService {
	return &DocumentService{
		httpClient:   &http.Client{Timeout: upstream.Timeout},
		timeout:      upstream.Timeout,
		maxBytes:     cfg.MaxBytes,
		previewChars: cfg.PreviewChars,
	}
}

// Fetch downloads rawURL and checks that the body is an HTML document.
func (s *DocumentService) Fetch(ctx context.Context, rawURL string) (model.ContractDocument, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.ContractDocument{}, model.InvalidContent("contract_html_url is not an http(s) URL", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.ContractDocument{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html, */*")
	setNoCache(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return model.ContractDocument{}, model.UpstreamFailure("contract document download failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return model.ContractDocument{}, model.UpstreamFailure("failed to read contract document", err)
	}
	doc := model.ContractDocument{RawHTML: string(body)}

	if !isSuccess(resp.StatusCode) {
		return model.ContractDocument{}, model.UpstreamRejected(
			fmt.Sprintf("document host returned status %d", resp.StatusCode), doc.Preview(s.previewChars))
	}
	if int64(len(body)) > s.maxBytes {
		return model.ContractDocument{}, model.InvalidContent(
			fmt.Sprintf("contract document exceeds %d bytes", s.maxBytes), doc.Preview(s.previewChars))
	}
	if !doc.Valid() {
		logger.Warn(ctx, "contract document is not HTML",
			"content_type", resp.Header.Get("Content-Type"),
			"size", len(body),
		)
		return model.ContractDocument{}, model.InvalidContent("contract document is not HTML", doc.Preview(s.previewChars))
	}

	return doc, nil
}
