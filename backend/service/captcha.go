package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bilimevi/contractgate/backend/config"
	"github.com/bilimevi/contractgate/backend/model"
	"github.com/bilimevi/contractgate/backend/pkg/logger"
)

// CaptchaService verifies reCAPTCHA responses.
type CaptchaService struct {
	config     *config.CaptchaConfig
	httpClient *http.Client
	timeout    time.Duration
}

type siteVerifyResponse struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

func NewCaptchaService(cfg *config.CaptchaConfig, upstream *config.UpstreamConfig) *CaptchaService {
	return &CaptchaService{
		config:     cfg,
		httpClient: &http.Client{Timeout: upstream.Timeout},
		timeout:    upstream.Timeout,
	}
}

// Verify reports whether response passes verification. It fails closed: a
// missing secret or an unreadable answer is a failed verification, not an
// error. Only transport failures return an error.
func (s *CaptchaService) Verify(ctx context.Context, response, remoteIP string) (bool, error) {
	if s.config.Secret == "" {
		logger.Warn(ctx, "captcha secret not configured, rejecting verification")
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", s.config.Secret)
	form.Set("response", response)
	if remoteIP != "" && remoteIP != "unknown" {
		form.Set("remoteip", remoteIP)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, model.UpstreamFailure("captcha verification unavailable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return false, model.UpstreamFailure("failed to read captcha verification response", err)
	}

	if !isSuccess(resp.StatusCode) {
		logger.Warn(ctx, "captcha verification returned non-success status", "status", resp.StatusCode)
		return false, nil
	}

	var result siteVerifyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		logger.Warn(ctx, "captcha verification returned malformed JSON", "error", err)
		return false, nil
	}

	if !result.Success {
		logger.Info(ctx, "captcha verification failed", "error_codes", result.ErrorCodes)
	}
	return result.Success, nil
}
