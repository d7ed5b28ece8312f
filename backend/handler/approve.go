package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bilimevi/contractgate/backend/model"
	"github.com/bilimevi/contractgate/backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// CaptchaVerifier checks a CAPTCHA response. A false result with a nil error is a failed check.
type CaptchaVerifier interface {
	Verify(ctx context.Context, response, remoteIP string) (bool, error)
}

// ApprovalForwarder delivers approval records to the automation backend.
type ApprovalForwarder interface {
	ApprovalConfigured() bool
	ForwardApproval(ctx context.Context, sub model.ApprovalSubmission) error
}

type ApproveHandler struct {
	captcha   CaptchaVerifier
	forwarder ApprovalForwarder
	now       func() time.Time
}

func NewApproveHandler(captcha CaptchaVerifier, forwarder ApprovalForwarder) *ApproveHandler {
	return &ApproveHandler{
		captcha:   captcha,
		forwarder: forwarder,
		now:       time.Now,
	}
}

type ApproveRequest struct {
	Token          string `json:"token"`
	FullName       string `json:"full_name"`
	RecaptchaToken string `json:"recaptcha_token"`
}

// Approve handles POST /api/approve. Nothing leaves the process until all
// three fields are present; the backend is only called after the CAPTCHA passed.
func (h *ApproveHandler) Approve(c *gin.Context) {
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req = ApproveRequest{}
	}

	token := strings.TrimSpace(req.Token)
	fullName := strings.TrimSpace(req.FullName)

	switch {
	case token == "":
		respondWithError(c, model.InvalidInput("token is required"))
		return
	case fullName == "":
		respondWithError(c, model.InvalidInput("full_name is required"))
		return
	case strings.TrimSpace(req.RecaptchaToken) == "":
		respondWithError(c, model.InvalidInput("recaptcha_token is required"))
		return
	}

	if !h.forwarder.ApprovalConfigured() {
		respondWithError(c, model.ConfigMissing("backend.approve_url"))
		return
	}

	ctx := logger.WithToken(c.Request.Context(), token)
	ip := SubmitterIP(c.Request)

	ok, err := h.captcha.Verify(ctx, req.RecaptchaToken, ip)
	if err != nil {
		respondWithError(c, err)
		return
	}
	if !ok {
		respondWithError(c, model.VerificationFailed("captcha verification failed"))
		return
	}

	sub := model.NewApprovalSubmission(token, fullName, req.RecaptchaToken, ip, c.GetHeader("User-Agent"), h.now())
	if err := h.forwarder.ForwardApproval(ctx, sub); err != nil {
		respondWithError(c, err)
		return
	}

	logger.Info(ctx, "contract approved", "approved_ip", sub.ApprovedIP, "approved_at", sub.ApprovedAt)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// SubmitterIP is best effort: the first X-Forwarded-For entry, then
// X-Real-IP, then "unknown". The connection address is not used because the
// service is expected to run behind a proxy.
func SubmitterIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return "unknown"
}
