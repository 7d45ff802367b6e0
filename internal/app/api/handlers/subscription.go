package handlers

import (
	"errors"
	"net/http"

	"github.com/fatflowers/biller/internal/app/service/billing"
	"github.com/fatflowers/biller/pkg/response"

	"github.com/gin-gonic/gin"
)

// userID returns the authenticated user id set by the auth middleware.
func userID(c *gin.Context) string {
	v, _ := c.Get("user_id")
	s, _ := v.(string)
	return s
}

// writeBillingError maps lifecycle errors to the response envelope. Business
// rejections come back as bad-request codes; anything else is an internal
// error.
func writeBillingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, billing.ErrPlanNotFound),
		errors.Is(err, billing.ErrPaymentMethodNotFound),
		errors.Is(err, billing.ErrSubscriptionNotFound),
		errors.Is(err, billing.ErrDuplicateSubscription),
		errors.Is(err, billing.ErrInvalidTransition),
		errors.Is(err, billing.ErrChargeFailed):
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
	default:
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
	}
}

type CreateSubscriptionRequest struct {
	PlanID          string `json:"plan_id"`
	PaymentMethodID string `json:"payment_method_id"`
}

// @Summary      Create Subscription
// @Description  Signs the authenticated user up to a plan. Plans with a trial start in trial; others are charged immediately.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        request body CreateSubscriptionRequest true "Signup request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/subscriptions [post]
func ApiCreateSubscription(mgr billing.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateSubscriptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if req.PlanID == "" || req.PaymentMethodID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing plan_id or payment_method_id"))
			return
		}

		sub, err := mgr.Create(c.Request.Context(), &billing.CreateRequest{
			UserID:          userID(c),
			PlanID:          req.PlanID,
			PaymentMethodID: req.PaymentMethodID,
		})
		if err != nil {
			writeBillingError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      List Subscriptions
// @Description  Lists the authenticated user's subscriptions, newest first.
// @Tags         Subscription
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/subscriptions [get]
func ApiListSubscriptions(mgr billing.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		subs, err := mgr.List(c.Request.Context(), userID(c))
		if err != nil {
			writeBillingError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(subs))
	}
}

// @Summary      Get Subscription
// @Tags         Subscription
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/subscriptions/{id} [get]
func ApiGetSubscription(mgr billing.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := mgr.Get(c.Request.Context(), userID(c), c.Param("id"))
		if err != nil {
			writeBillingError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

type CancelSubscriptionRequest struct {
	Immediate bool `json:"immediate"`
}

// @Summary      Cancel Subscription
// @Description  Cancels immediately or schedules cancellation at period end.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Param        request body CancelSubscriptionRequest false "Cancellation options"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/subscriptions/{id}/cancel [post]
func ApiCancelSubscription(mgr billing.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CancelSubscriptionRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
		}

		sub, err := mgr.Cancel(c.Request.Context(), userID(c), c.Param("id"), req.Immediate)
		if err != nil {
			writeBillingError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

type RetryPaymentRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
}

// @Summary      Retry Payment
// @Description  Retries the charge for a past-due subscription, optionally with a different payment method.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Param        request body RetryPaymentRequest false "Optional payment method override"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/subscriptions/{id}/retry [post]
func ApiRetryPayment(mgr billing.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RetryPaymentRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
		}

		sub, err := mgr.Retry(c.Request.Context(), userID(c), c.Param("id"), req.PaymentMethodID)
		if err != nil {
			writeBillingError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

func RegisterSubscriptionRoutes(r gin.IRouter, mgr billing.Manager) {
	r.POST("/subscriptions", ApiCreateSubscription(mgr))
	r.GET("/subscriptions", ApiListSubscriptions(mgr))
	r.GET("/subscriptions/:id", ApiGetSubscription(mgr))
	r.POST("/subscriptions/:id/cancel", ApiCancelSubscription(mgr))
	r.POST("/subscriptions/:id/retry", ApiRetryPayment(mgr))
}
