package handlers

import (
	"net/http"

	"github.com/fatflowers/biller/internal/models"
	"github.com/fatflowers/biller/internal/store"
	"github.com/fatflowers/biller/pkg/response"
	"github.com/fatflowers/biller/pkg/tool"

	"github.com/gin-gonic/gin"
)

type RegisterPaymentMethodRequest struct {
	Type        string `json:"type"`
	Last4       string `json:"last4"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
	IsDefault   bool   `json:"is_default"`
}

// @Summary      Register Payment Method
// @Description  Stores a tokenized payment method reference for the authenticated user.
// @Tags         PaymentMethod
// @Accept       json
// @Produce      json
// @Param        request body RegisterPaymentMethodRequest true "Payment method details"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/payment_methods [post]
func ApiRegisterPaymentMethod(methods *store.PaymentMethodStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterPaymentMethodRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if req.Type == "" || len(req.Last4) != 4 {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing type or last4"))
			return
		}

		pm := &models.PaymentMethod{
			ID:          tool.GenerateUUIDV7(),
			UserID:      userID(c),
			Type:        req.Type,
			Last4:       req.Last4,
			ExpiryMonth: req.ExpiryMonth,
			ExpiryYear:  req.ExpiryYear,
			IsDefault:   req.IsDefault,
		}
		if err := methods.Create(c.Request.Context(), pm); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(pm))
	}
}

// @Summary      List Payment Methods
// @Tags         PaymentMethod
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/payment_methods [get]
func ApiListPaymentMethods(methods *store.PaymentMethodStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := methods.ListByUser(c.Request.Context(), userID(c))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(items))
	}
}

func RegisterPaymentMethodRoutes(r gin.IRouter, methods *store.PaymentMethodStore) {
	r.POST("/payment_methods", ApiRegisterPaymentMethod(methods))
	r.GET("/payment_methods", ApiListPaymentMethods(methods))
}
