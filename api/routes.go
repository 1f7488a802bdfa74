package api

import (
	"github.com/NethermindEth/eternalgov/api/handlers"
	"github.com/gin-gonic/gin"
)

// SetupRoutes initializes all API endpoints
func SetupRoutes(router *gin.Engine, h *handlers.Handler) {
	api := router.Group("/api")
	{
		api.GET("/status", h.GetStatus)
		api.GET("/identity", h.GetIdentity)
		api.POST("/identity", h.RegisterIdentity)
		api.POST("/ingest", h.Ingest)
		api.GET("/daos", h.ListDAOs)
		api.GET("/daos/:dao/preferences", h.GetPreferences)
		api.GET("/daos/:dao/accuracy", h.GetAccuracy)
		api.GET("/proposals", h.ListProposals)
		api.GET("/proposals/search", h.SearchProposals)
		api.GET("/proposals/:dao/:id", h.GetProposal)
		api.POST("/proposals/:dao/:id/analyze", h.Analyze)
		api.GET("/proposals/:dao/:id/report", h.GetReport)
		api.POST("/proposals/:dao/:id/vote", h.CastVote)
		api.POST("/proposals/:dao/:id/outcome", h.RecordOutcome)
		api.GET("/patterns", h.GetPatterns)
		api.GET("/votes", h.ListVotes)
		api.GET("/receipts", h.ListReceipts)
	}
}
