package handlers

import (
	"errors"
	"net/http"

	"github.com/fatflowers/biller/internal/store"
	"github.com/fatflowers/biller/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// @Summary      List Plans
// @Description  Lists plans currently open for signup.
// @Tags         Plan
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/plans [get]
func ApiListPlans(plans *store.PlanStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := plans.ListActive(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(items))
	}
}

// @Summary      Get Plan
// @Tags         Plan
// @Produce      json
// @Param        id path string true "Plan ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/plans/{id} [get]
func ApiGetPlan(plans *store.PlanStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		plan, err := plans.FindByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "plan not found"))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(plan))
	}
}

func RegisterPlanRoutes(r gin.IRouter, plans *store.PlanStore) {
	r.GET("/plans", ApiListPlans(plans))
	r.GET("/plans/:id", ApiGetPlan(plans))
}
