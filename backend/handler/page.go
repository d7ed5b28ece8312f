package handler

import (
	"net/http"
	"strings"

	"github.com/bilimevi/contractgate/backend/model"
	"github.com/gin-gonic/gin"
)

// MissingTokenMessage is shown when the page link carries no token.
const MissingTokenMessage = "Geçersiz bağlantı: sözleşme anahtarı bulunamadı."

// PageConfig is serialized into the contract page. The browser runtime
// enforces the same transitions and gate as model.Flow.
type PageConfig struct {
	Token             string                                      `json:"token"`
	SiteKey           string                                      `json:"site_key"`
	ScrollTolerancePx float64                                     `json:"scroll_tolerance_px"`
	GateOrder         []model.GateReason                          `json:"gate_order"`
	GateMessages      map[model.GateReason]string                 `json:"gate_messages"`
	Transitions       map[model.Phase]map[model.Event]model.Phase `json:"transitions"`
	Initial           model.FlowState                             `json:"initial"`
}

type PageHandler struct {
	siteKey string
}

func NewPageHandler(siteKey string) *PageHandler {
	return &PageHandler{siteKey: siteKey}
}

// Index renders the landing page.
func (h *PageHandler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{})
}

// Contract renders the approval page for the token in the path.
func (h *PageHandler) Contract(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	cfg := h.pageConfig(token)

	c.HTML(http.StatusOK, "contract.html", gin.H{
		"Token":   token,
		"SiteKey": h.siteKey,
		"Config":  cfg,
	})
}

func (h *PageHandler) pageConfig(token string) PageConfig {
	flow := model.NewFlow()
	gen, _ := flow.BeginLoad(token)
	if token == "" {
		_ = flow.LoadFailed(gen, MissingTokenMessage)
	}

	return PageConfig{
		Token:             token,
		SiteKey:           h.siteKey,
		ScrollTolerancePx: model.ScrollTolerancePx,
		GateOrder:         model.GateOrder(),
		GateMessages:      model.GateMessages,
		Transitions:       model.Transitions(),
		Initial:           flow.State(),
	}
}
