package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dex-perp-bot/internal/auth"
	"dex-perp-bot/internal/decision"
)

// ============================================================================
// READ-ONLY VIEWS
// ============================================================================

func (s *Server) handleGetStats(c *gin.Context) {
	successResponse(c, s.learning.Stats())
}

func (s *Server) handleGetDimensions(c *gin.Context) {
	successResponse(c, s.learning.DimensionBreakdown())
}

func (s *Server) handleGetFilters(c *gin.Context) {
	successResponse(c, s.learning.ActiveFiltersSummary())
}

func (s *Server) handleGetPrompt(c *gin.Context) {
	successResponse(c, gin.H{"prompt_context": s.learning.PromptEnhancement()})
}

func (s *Server) handleGetReport(c *gin.Context) {
	report := s.learning.LastReport()
	if report == nil {
		errorResponse(c, http.StatusNotFound, "no review has completed yet")
		return
	}
	successResponse(c, report)
}

func (s *Server) handleGetOpenTrades(c *gin.Context) {
	successResponse(c, s.learning.OpenTrades())
}

// EvaluateResponse is the result of a dry-run decision check
type EvaluateResponse struct {
	Decision        decision.Decision `json:"decision"`
	Rejected        bool              `json:"rejected"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
}

func (s *Server) handleEvaluateDecision(c *gin.Context) {
	var req decision.Decision
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid decision: "+err.Error())
		return
	}

	out, reason := s.learning.FilterDecision(req)
	successResponse(c, EvaluateResponse{
		Decision:        out,
		Rejected:        reason != "",
		RejectionReason: reason,
	})
}

// ============================================================================
// ADMIN
// ============================================================================

func (s *Server) handleForceReview(c *gin.Context) {
	s.logger.Info().Str("operator", auth.GetSubject(c)).Msg("Review forced via API")

	report := s.learning.ForceReview()
	if report == nil {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"skipped": true,
			"message": "not enough closed trades to review",
		})
		return
	}
	successResponse(c, report)
}

func (s *Server) handleClearFilters(c *gin.Context) {
	s.logger.Warn().Str("operator", auth.GetSubject(c)).Msg("Clearing all filters via API")
	successResponse(c, gin.H{"cleared": s.learning.ClearFilters()})
}

func (s *Server) handleDeactivateFilter(c *gin.Context) {
	id := c.Param("id")
	if !s.learning.DeactivateFilter(id) {
		errorResponse(c, http.StatusNotFound, "no active filter with id "+id)
		return
	}
	s.logger.Info().Str("operator", auth.GetSubject(c)).Str("filter_id", id).Msg("Filter deactivated via API")
	successResponse(c, gin.H{"deactivated": id})
}
