package handlers

import (
	"net/http"
	"time"

	"github.com/fatflowers/biller/internal/app/service/billing"
	"github.com/fatflowers/biller/internal/app/service/ledger"
	"github.com/fatflowers/biller/internal/models"
	"github.com/fatflowers/biller/internal/store"
	"github.com/fatflowers/biller/pkg/response"
	"github.com/fatflowers/biller/pkg/tool"
	"github.com/fatflowers/biller/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// TransactionItem flattens a ledger row for the admin listing.
type TransactionItem struct {
	ID                    string                  `json:"id"`
	SubscriptionID        string                  `json:"subscription_id"`
	UserID                string                  `json:"user_id"`
	PlanID                string                  `json:"plan_id"`
	Amount                int64                   `json:"amount"`
	Currency              string                  `json:"currency"`
	Status                types.TransactionStatus `json:"status"`
	InvoiceNumber         string                  `json:"invoice_number"`
	ProviderTransactionID *string                 `json:"provider_transaction_id"`
	FailureReason         *string                 `json:"failure_reason"`
	PaymentMethodType     string                  `json:"payment_method_type"`
	PaymentMethodLast4    string                  `json:"payment_method_last4"`
	BillingPeriodStart    time.Time               `json:"billing_period_start"`
	BillingPeriodEnd      time.Time               `json:"billing_period_end"`
	CreatedAt             time.Time               `json:"created_at"`
}

func toTransactionItem(m *models.Transaction) *TransactionItem {
	item := &TransactionItem{
		ID:                    m.ID,
		SubscriptionID:        m.SubscriptionID,
		UserID:                m.UserID,
		PlanID:                m.PlanID,
		Amount:                m.Amount,
		Currency:              m.Currency,
		Status:                m.Status,
		InvoiceNumber:         m.InvoiceNumber,
		ProviderTransactionID: m.ProviderTransactionID,
		FailureReason:         m.FailureReason,
		BillingPeriodStart:    m.BillingPeriodStart,
		BillingPeriodEnd:      m.BillingPeriodEnd,
		CreatedAt:             m.CreatedAt,
	}
	if snap := m.GetPaymentMethodSnapshot(); snap != nil {
		item.PaymentMethodType = snap.Type
		item.PaymentMethodLast4 = snap.Last4
	}
	return item
}

type ScanTransactionsResponse struct {
	Items []*TransactionItem `json:"items"`
	Total int64              `json:"total"`
}

// @Summary      Scan Transactions (Admin)
// @Description  Paginated, filterable listing of the full transaction ledger.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ledger.ScanRequest true "Scan request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/transactions/scan [post]
func ApiScanTransactions(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ledger.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.Scan(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		items := lo.Map(res.Items, func(it *models.Transaction, _ int) *TransactionItem { return toTransactionItem(it) })
		c.JSON(http.StatusOK, response.OKT(&ScanTransactionsResponse{Items: items, Total: res.Total}))
	}
}

// @Summary      Revenue By Currency (Admin)
// @Description  Sums succeeded charges grouped by currency over an optional time window.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ledger.RevenueFilter false "Optional time window"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/revenue [post]
func ApiRevenueByCurrency(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter ledger.RevenueFilter
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&filter); err != nil {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
		}
		rows, err := svc.RevenueByCurrency(c.Request.Context(), &filter)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(rows))
	}
}

type CreatePlanRequest struct {
	Name            string             `json:"name"`
	Description     string             `json:"description"`
	Price           int64              `json:"price"`
	Currency        string             `json:"currency"`
	BillingCycle    types.BillingCycle `json:"billing_cycle"`
	TrialPeriodDays int                `json:"trial_period_days"`
}

// @Summary      Create Plan (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body CreatePlanRequest true "Plan definition"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/plans [post]
func ApiCreatePlan(plans *store.PlanStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreatePlanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if req.Name == "" || req.Price < 0 || req.Currency == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing name, price or currency"))
			return
		}
		if req.BillingCycle != types.BillingCycleMonthly && req.BillingCycle != types.BillingCycleYearly {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "billing_cycle must be monthly or yearly"))
			return
		}
		if req.TrialPeriodDays < 0 {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "trial_period_days must not be negative"))
			return
		}

		plan := &models.Plan{
			ID:              tool.GenerateUUIDV7(),
			Name:            req.Name,
			Description:     req.Description,
			Price:           req.Price,
			Currency:        req.Currency,
			BillingCycle:    req.BillingCycle,
			TrialPeriodDays: req.TrialPeriodDays,
			IsActive:        true,
		}
		if err := plans.Create(c.Request.Context(), plan); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(plan))
	}
}

type SetPlanActiveRequest struct {
	Active bool `json:"active"`
}

// @Summary      Retire Or Reopen Plan (Admin)
// @Description  Flips a plan's availability for new signups. Existing subscriptions keep renewing until the scheduler observes the retirement.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        id path string true "Plan ID"
// @Param        request body SetPlanActiveRequest true "Desired availability"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/plans/{id}/active [post]
func ApiSetPlanActive(plans *store.PlanStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetPlanActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if err := plans.SetActive(c.Request.Context(), c.Param("id"), req.Active); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      Subscription Change History (Admin)
// @Description  Lists before/after transition snapshots recorded for a subscription, newest first.
// @Tags         Admin
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/subscriptions/{id}/logs [get]
func ApiSubscriptionLogs(logs *store.SubscriptionLogStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := logs.ListBySubscription(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(entries))
	}
}

// @Summary      Run Renewal Job (Admin)
// @Description  Triggers the renewal pass outside its schedule and returns the run summary.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/jobs/renewals [post]
func ApiRunRenewals(mgr billing.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := mgr.ProcessRenewals(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(summary))
	}
}

// @Summary      Run Status Job (Admin)
// @Description  Triggers the status reconciliation pass outside its schedule and returns the run summary.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/jobs/statuses [post]
func ApiRunStatuses(mgr billing.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := mgr.ReconcileStatuses(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(summary))
	}
}

func RegisterAdminRoutes(r gin.IRouter, ldg *ledger.Service, plans *store.PlanStore, logs *store.SubscriptionLogStore, mgr billing.Manager) {
	r.POST("/transactions/scan", ApiScanTransactions(ldg))
	r.POST("/revenue", ApiRevenueByCurrency(ldg))
	r.POST("/plans", ApiCreatePlan(plans))
	r.POST("/plans/:id/active", ApiSetPlanActive(plans))
	r.GET("/subscriptions/:id/logs", ApiSubscriptionLogs(logs))
	r.POST("/jobs/renewals", ApiRunRenewals(mgr))
	r.POST("/jobs/statuses", ApiRunStatuses(mgr))
}
