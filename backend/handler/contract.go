package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/bilimevi/contractgate/backend/model"
	"github.com/bilimevi/contractgate/backend/pkg/logger"
	"github.com/bilimevi/contractgate/backend/service"
	"github.com/gin-gonic/gin"
)

// ContractResolver finds where the document for a token is hosted.
type ContractResolver interface {
	ResolveContract(ctx context.Context, token string) (model.ContractRef, error)
}

// DocumentFetcher downloads and validates a contract document.
type DocumentFetcher interface {
	Fetch(ctx context.Context, rawURL string) (model.ContractDocument, error)
}

type ContractHandler struct {
	resolver  ContractResolver
	documents DocumentFetcher
}

func NewContractHandler(resolver ContractResolver, documents DocumentFetcher) *ContractHandler {
	return &ContractHandler{
		resolver:  resolver,
		documents: documents,
	}
}

// ContractResponse carries the raw document plus a display-ready rewrite of it.
type ContractResponse struct {
	Token           string `json:"token"`
	ContractHTML    string `json:"contract_html"`
	DisplayHTML     string `json:"display_html"`
	ApprovalStatus  string `json:"approval_status,omitempty"`
	ContractVersion string `json:"contract_version,omitempty"`
}

// Get handles GET /api/contract?token=
func (h *ContractHandler) Get(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		respondWithError(c, model.InvalidInput("token is required"))
		return
	}

	ctx := logger.WithToken(c.Request.Context(), token)

	ref, err := h.resolver.ResolveContract(ctx, token)
	if err != nil {
		respondWithError(c, err)
		return
	}

	doc, err := h.documents.Fetch(ctx, ref.HTMLURL)
	if err != nil {
		respondWithError(c, err)
		return
	}

	logger.Info(ctx, "contract served", "bytes", len(doc.RawHTML))

	c.JSON(http.StatusOK, ContractResponse{
		Token:           token,
		ContractHTML:    doc.RawHTML,
		DisplayHTML:     service.NormalizeContractHTML(doc.RawHTML),
		ApprovalStatus:  ref.ApprovalStatus,
		ContractVersion: ref.ContractVersion,
	})
}
