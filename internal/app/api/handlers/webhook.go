package handlers

import (
	"net/http"

	"github.com/fatflowers/biller/internal/models"
	"github.com/fatflowers/biller/internal/store"
	"github.com/fatflowers/biller/pkg/response"
	"github.com/fatflowers/biller/pkg/tool"
	"github.com/fatflowers/biller/pkg/types"

	"github.com/gin-gonic/gin"
)

type RegisterWebhookRequest struct {
	URL    string                   `json:"url"`
	Secret string                   `json:"secret"`
	Events []types.WebhookEventType `json:"events"`
}

// @Summary      Register Webhook
// @Description  Registers an endpoint that receives signed billing event notifications.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        request body RegisterWebhookRequest true "Webhook registration"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/webhooks [post]
func ApiRegisterWebhook(webhooks *store.WebhookStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterWebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if req.URL == "" || req.Secret == "" || len(req.Events) == 0 {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing url, secret or events"))
			return
		}
		for _, e := range req.Events {
			if !types.ValidWebhookEventType(string(e)) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "unknown event type: "+string(e)))
				return
			}
		}

		wh := &models.Webhook{
			ID:       tool.GenerateUUIDV7(),
			UserID:   userID(c),
			URL:      req.URL,
			Secret:   req.Secret,
			Events:   req.Events,
			IsActive: true,
		}
		if err := webhooks.Create(c.Request.Context(), wh); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(wh))
	}
}

// @Summary      List Webhooks
// @Tags         Webhook
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/webhooks [get]
func ApiListWebhooks(webhooks *store.WebhookStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := webhooks.ListByUser(c.Request.Context(), userID(c))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(items))
	}
}

// @Summary      Delete Webhook
// @Tags         Webhook
// @Produce      json
// @Param        id path string true "Webhook ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/webhooks/{id} [delete]
func ApiDeleteWebhook(webhooks *store.WebhookStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := webhooks.Delete(c.Request.Context(), c.Param("id"), userID(c)); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterWebhookRoutes(r gin.IRouter, webhooks *store.WebhookStore) {
	r.POST("/webhooks", ApiRegisterWebhook(webhooks))
	r.GET("/webhooks", ApiListWebhooks(webhooks))
	r.DELETE("/webhooks/:id", ApiDeleteWebhook(webhooks))
}
