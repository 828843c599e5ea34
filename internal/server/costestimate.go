package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	costestimate "github.com/smallbiznis/cloudbill/internal/costestimate/domain"
)

type costEstimateResponse struct {
	UUID      string `json:"uuid"`
	ScopeType string `json:"scope_type"`
	ScopeID   string `json:"scope_id"`
	Total     string `json:"total"`
	Limit     string `json:"limit"`
	Threshold string `json:"threshold"`
	Unlimited bool   `json:"unlimited"`
}

func (s *Server) listCostEstimates(c *gin.Context) {
	scopeType := costestimate.ScopeType(c.Query("scope_type"))
	switch scopeType {
	case "", costestimate.ScopeProject, costestimate.ScopeCustomer:
	default:
		badRequest(c, "scope_type must be project or customer")
		return
	}

	estimates, err := s.estimator.List(c.Request.Context(), scopeType)
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]costEstimateResponse, len(estimates))
	for i, estimate := range estimates {
		out[i] = costEstimateResponse{
			UUID:      estimate.UUID.String(),
			ScopeType: string(estimate.ScopeType),
			ScopeID:   estimate.ScopeID.String(),
			Total:     estimate.Total.String(),
			Limit:     estimate.Limit.String(),
			Threshold: estimate.Threshold.String(),
			Unlimited: estimate.Unlimited(),
		}
	}
	c.JSON(http.StatusOK, gin.H{"cost_estimates": out})
}
