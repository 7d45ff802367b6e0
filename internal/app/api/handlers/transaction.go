package handlers

import (
	"errors"
	"net/http"

	"github.com/fatflowers/biller/internal/app/service/ledger"
	"github.com/fatflowers/biller/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// @Summary      List Transactions
// @Description  Lists the authenticated user's billing history, newest first.
// @Tags         Transaction
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/transactions [get]
func ApiListTransactions(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.ListByUser(c.Request.Context(), userID(c))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(items))
	}
}

// @Summary      Get Transaction
// @Tags         Transaction
// @Produce      json
// @Param        id path string true "Transaction ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/transactions/{id} [get]
func ApiGetTransaction(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		txn, err := svc.FindByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "transaction not found"))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		if txn.UserID != userID(c) {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "transaction not found"))
			return
		}
		c.JSON(http.StatusOK, response.OKT(txn))
	}
}

// @Summary      List Subscription Transactions
// @Description  Lists the ledger entries recorded for one subscription, newest first.
// @Tags         Transaction
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/subscriptions/{id}/transactions [get]
func ApiListSubscriptionTransactions(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.ListBySubscription(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		// the ledger is keyed by subscription; filter to the caller's rows
		uid := userID(c)
		own := items[:0]
		for _, it := range items {
			if it.UserID == uid {
				own = append(own, it)
			}
		}
		c.JSON(http.StatusOK, response.OKT(own))
	}
}

func RegisterTransactionRoutes(r gin.IRouter, svc *ledger.Service) {
	r.GET("/transactions", ApiListTransactions(svc))
	r.GET("/transactions/:id", ApiGetTransaction(svc))
	r.GET("/subscriptions/:id/transactions", ApiListSubscriptionTransactions(svc))
}
