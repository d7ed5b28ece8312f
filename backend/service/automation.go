package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bilimevi/contractgate/backend/config"
	"github.com/bilimevi/contractgate/backend/model"
	"github.com/bilimevi/contractgate/backend/pkg/logger"
)

// maxBackendBody caps how much of a webhook answer is read.
const maxBackendBody = 1 << 20

// AutomationService talks to the workflow automation webhooks that own
// contract and approval state.
type AutomationService struct {
	config       *config.BackendConfig
	httpClient   *http.Client
	timeout      time.Duration
	previewChars int
}

func NewAutomationService(cfg *config.BackendConfig, upstream *config.UpstreamConfig, docs *config.DocumentsConfig) *AutomationService {
	return &AutomationService{
		config:       cfg,
		httpClient:   &http.Client{Timeout: upstream.Timeout},
		timeout:      upstream.Timeout,
		previewChars: docs.PreviewChars,
	}
}

// ApprovalConfigured reports whether an approval webhook is set.
func (s *AutomationService) ApprovalConfigured() bool {
	return s.config.ApproveURL != ""
}

// ResolveContract asks the backend where the contract document for token lives.
func (s *AutomationService) ResolveContract(ctx context.Context, token string) (model.ContractRef, error) {
	if s.config.ContractURL == "" {
		return model.ContractRef{}, model.ConfigMissing("backend.contract_url")
	}

	u, err := url.Parse(s.config.ContractURL)
	if err != nil {
		return model.ContractRef{}, &model.AppError{Kind: model.KindConfigMissing, Message: "backend.contract_url is invalid", Err: err}
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.ContractRef{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	setNoCache(req)
	s.setAPIKey(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return model.ContractRef{}, model.UpstreamFailure("contract lookup failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBackendBody))
	if err != nil {
		return model.ContractRef{}, model.UpstreamFailure("failed to read contract lookup response", err)
	}

	if !isSuccess(resp.StatusCode) {
		logger.Warn(ctx, "contract lookup rejected", "status", resp.StatusCode)
		return model.ContractRef{}, model.UpstreamRejected(
			fmt.Sprintf("contract lookup returned status %d", resp.StatusCode), string(body))
	}

	ref, found, err := model.DecodeContractRef(body)
	if err != nil {
		return model.ContractRef{}, model.InvalidContent("contract lookup returned malformed JSON",
			model.ContractDocument{RawHTML: string(body)}.Preview(s.previewChars))
	}
	if !found {
		return model.ContractRef{}, model.NotFound("no contract found for token")
	}

	logger.Debug(ctx, "contract resolved", "contract_version", ref.ContractVersion, "approval_status", ref.ApprovalStatus)
	return ref, nil
}

// ForwardApproval posts the approval record. It is sent exactly once; the
// backend is responsible for deduplicating repeated tokens.
func (s *AutomationService) ForwardApproval(ctx context.Context, sub model.ApprovalSubmission) error {
	if s.config.ApproveURL == "" {
		return model.ConfigMissing("backend.approve_url")
	}

	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal approval: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.ApproveURL, bytes.NewReader(payload))
	if err != nil {
		return &model.AppError{Kind: model.KindConfigMissing, Message: "backend.approve_url is invalid", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	s.setAPIKey(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return model.UpstreamFailure("approval forwarding failed", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBackendBody))
		return model.UpstreamRejected(
			fmt.Sprintf("approval webhook returned status %d", resp.StatusCode), string(body))
	}

	// Drain so the connection can be reused; the body itself is not used.
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxBackendBody)); err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug(ctx, "failed to drain approval response", "error", err)
	}
	return nil
}

func (s *AutomationService) setAPIKey(req *http.Request) {
	if s.config.APIKey != "" {
		req.Header.Set("x-api-key", s.config.APIKey)
	}
}

func setNoCache(req *http.Request) {
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
