package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bilimevi/contractgate/backend/config"
	"github.com/bilimevi/contractgate/backend/model"
	"github.com/bilimevi/contractgate/backend/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContractHTML = `<html><head><title>Sözleşme</title></head><body><div style="width:800px;">Madde 1</div></body></html>`

type upstreams struct {
	backend  *httptest.Server
	docs     *httptest.Server
	captcha  *httptest.Server
	approved chan map[string]any

	captchaCalls atomic.Int32
	approveCalls atomic.Int32
	captchaOK    bool
}

func newUpstreams(t *testing.T, captchaOK bool) *upstreams {
	t.Helper()
	u := &upstreams{approved: make(chan map[string]any, 4), captchaOK: captchaOK}

	u.docs = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		io.WriteString(w, testContractHTML)
	}))

	u.backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/webhook/contract":
			w.Header().Set("Content-Type", "application/json")
			if r.URL.Query().Get("token") != "abc" {
				io.WriteString(w, `[]`)
				return
			}
			json.NewEncoder(w).Encode([]map[string]string{{"contract_html_url": u.docs.URL + "/abc.html"}})
		case "/webhook/approve":
			u.approveCalls.Add(1)
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			u.approved <- body
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))

	u.captcha = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.captchaCalls.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "captcha-secret", r.PostForm.Get("secret"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"success": u.captchaOK})
	}))

	t.Cleanup(func() {
		u.backend.Close()
		u.docs.Close()
		u.captcha.Close()
	})
	return u
}

func newTestRouter(t *testing.T, u *upstreams, rps float64, burst int, opts ...func(*config.Config)) *gin.Engine {
	t.Helper()
	cfg := &config.Config{
		Backend: config.BackendConfig{
			ContractURL: u.backend.URL + "/webhook/contract",
			ApproveURL:  u.backend.URL + "/webhook/approve",
		},
		Captcha: config.CaptchaConfig{
			Secret:    "captcha-secret",
			SiteKey:   "site-key",
			VerifyURL: u.captcha.URL,
		},
		Upstream:  config.UpstreamConfig{Timeout: 2 * time.Second},
		Documents: config.DocumentsConfig{MaxBytes: 1 << 20, PreviewChars: 200},
		RateLimit: config.RateLimitConfig{RPS: rps, Burst: burst},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	router, err := NewRouter(cfg, Services{
		Contracts: service.NewAutomationService(&cfg.Backend, &cfg.Upstream, &cfg.Documents),
		Documents: service.NewDocumentService(&cfg.Documents, &cfg.Upstream),
		Captcha:   service.NewCaptchaService(&cfg.Captcha, &cfg.Upstream),
		Approvals: service.NewAutomationService(&cfg.Backend, &cfg.Upstream, &cfg.Documents),
	})
	require.NoError(t, err)
	return router
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouterOpenContract(t *testing.T) {
	u := newUpstreams(t, true)
	router := newTestRouter(t, u, 100, 100)

	page := serve(router, httptest.NewRequest(http.MethodGet, "/sozlesme/abc", nil))
	require.Equal(t, http.StatusOK, page.Code)
	assert.Equal(t, "no-cache, no-store, must-revalidate", page.Header().Get("Cache-Control"))
	cfg := extractPageConfig(t, page.Body.String())
	assert.Equal(t, "abc", cfg.Token)
	assert.False(t, cfg.Initial.ConfirmEnabled)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/api/contract?token=abc", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var resp ContractResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "abc", resp.Token)
	assert.Equal(t, testContractHTML, resp.ContractHTML)
	assert.Contains(t, resp.DisplayHTML, "width:auto;")
	assert.Contains(t, resp.DisplayHTML, "<style>")
}

func TestRouterUnknownToken(t *testing.T) {
	u := newUpstreams(t, true)
	router := newTestRouter(t, u, 100, 100)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/api/contract?token=nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterApprove(t *testing.T) {
	u := newUpstreams(t, true)
	router := newTestRouter(t, u, 100, 100)

	req := httptest.NewRequest(http.MethodPost, "/api/approve",
		strings.NewReader(`{"token":"abc","full_name":"Ayşe Yılmaz","recaptcha_token":"r-1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.10")
	req.Header.Set("User-Agent", "browser/1.0")

	w := serve(router, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	require.Len(t, u.approved, 1)
	body := <-u.approved
	assert.Equal(t, "abc", body["token"])
	assert.Equal(t, "Ayşe Yılmaz", body["full_name"])
	assert.Equal(t, model.ApprovalStatusApproved, body["approval_status"])
	assert.Equal(t, "203.0.113.10", body["approved_ip"])
	assert.Equal(t, "browser/1.0", body["user_agent"])
	assert.NotContains(t, body, "recaptcha_token")

	approvedAt, ok := body["approved_at"].(string)
	require.True(t, ok)
	ts, err := time.Parse(time.RFC3339Nano, approvedAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)
	assert.True(t, strings.HasSuffix(approvedAt, "Z"))
}

func TestRouterApproveCaptchaRejected(t *testing.T) {
	u := newUpstreams(t, false)
	router := newTestRouter(t, u, 100, 100)

	req := httptest.NewRequest(http.MethodPost, "/api/approve",
		strings.NewReader(`{"token":"abc","full_name":"Ayşe","recaptcha_token":"bad"}`))
	req.Header.Set("Content-Type", "application/json")

	w := serve(router, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, int32(1), u.captchaCalls.Load())
	assert.Equal(t, int32(0), u.approveCalls.Load())
}

func TestRouterRateLimitsAPI(t *testing.T) {
	u := newUpstreams(t, true)
	router := newTestRouter(t, u, 1, 2)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(router, httptest.NewRequest(http.MethodGet, "/api/contract?token=abc", nil)).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Pages are not limited.
	page := serve(router, httptest.NewRequest(http.MethodGet, "/sozlesme/abc", nil))
	assert.Equal(t, http.StatusOK, page.Code)
}

func contractCodes(router http.Handler, n int, forwardedFor func(i int) string) []int {
	codes := make([]int, 0, n)
	for i := 0; i < n; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/contract?token=abc", nil)
		if forwardedFor != nil {
			req.Header.Set("X-Forwarded-For", forwardedFor(i))
		}
		codes = append(codes, serve(router, req).Code)
	}
	return codes
}

func TestRouterRateLimitIgnoresForwardedForFromClients(t *testing.T) {
	u := newUpstreams(t, true)
	router := newTestRouter(t, u, 1, 2)

	codes := contractCodes(router, 4, func(i int) string { return fmt.Sprintf("10.0.0.%d", i+1) })
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestRouterRateLimitTrustedProxy(t *testing.T) {
	u := newUpstreams(t, true)
	// httptest requests come from 192.0.2.1.
	router := newTestRouter(t, u, 1, 1, func(cfg *config.Config) {
		cfg.Server.TrustedProxies = []string{"192.0.2.0/24"}
	})

	codes := contractCodes(router, 3, func(i int) string { return fmt.Sprintf("198.51.100.%d", i+1) })
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusOK}, codes, "each forwarded client has its own bucket")

	codes = contractCodes(router, 2, func(int) string { return "198.51.100.50" })
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestNewRouterInvalidTrustedProxy(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{TrustedProxies: []string{"not-an-ip"}}}

	_, err := NewRouter(cfg, Services{})
	assert.Error(t, err)
}

func TestRouterStaticAndHealth(t *testing.T) {
	u := newUpstreams(t, true)
	router := newTestRouter(t, u, 0, 0)

	js := serve(router, httptest.NewRequest(http.MethodGet, "/static/contract.js", nil))
	require.Equal(t, http.StatusOK, js.Code)
	assert.Equal(t, "public, max-age=3600, must-revalidate", js.Header().Get("Cache-Control"))
	assert.Contains(t, js.Body.String(), "flow-config")

	health := serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, health.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(health.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouterQueryTokenIsEncoded(t *testing.T) {
	u := newUpstreams(t, true)
	router := newTestRouter(t, u, 100, 100)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/api/contract?token="+url.QueryEscape("a&b=c"), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
