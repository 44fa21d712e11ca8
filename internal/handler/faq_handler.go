package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/faqchat/internal/model"
	"github.com/xxxsen/faqchat/internal/pkg/errcode"
	"github.com/xxxsen/faqchat/internal/pkg/response"
	"github.com/xxxsen/faqchat/internal/retrieval"
)

const maxSearchK = 20

type Searcher interface {
	Retrieve(ctx context.Context, query string, k int) (*model.RetrievalResult, error)
	Reload(ctx context.Context) (retrieval.Status, error)
}

type FAQHandler struct {
	searcher Searcher
	topK     int
}

func NewFAQHandler(searcher Searcher, topK int) *FAQHandler {
	return &FAQHandler{searcher: searcher, topK: topK}
}

func (h *FAQHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		response.Error(c, errcode.ErrInvalid, "q is required")
		return
	}
	k := h.topK
	if raw := c.Query("k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			response.Error(c, errcode.ErrInvalid, "invalid k")
			return
		}
		k = v
	}
	if k > maxSearchK {
		k = maxSearchK
	}
	result, err := h.searcher.Retrieve(c.Request.Context(), query, k)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *FAQHandler) Reload(c *gin.Context) {
	status, err := h.searcher.Reload(c.Request.Context())
	if err != nil {
		logutil.GetLogger(c.Request.Context()).Error("reload faq failed", zap.Error(err))
		response.Error(c, errcode.ErrReloadFailed, "reload failed")
		return
	}
	response.Success(c, status)
}
