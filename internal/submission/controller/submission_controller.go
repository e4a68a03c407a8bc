package controller

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"codehub/internal/common/http/middleware"
	"codehub/internal/submission/model"
	"codehub/internal/submission/service"
	"codehub/pkg/utils/response"
)

// SubmissionController handles problem, submission and ranking endpoints.
type SubmissionController struct {
	submissions *service.SubmissionService
	queries     *service.QueryService
	progress    *service.ProgressHub
	stream      StreamConfig
}

// NewSubmissionController creates a new SubmissionController.
func NewSubmissionController(submissions *service.SubmissionService, queries *service.QueryService, progress *service.ProgressHub, stream StreamConfig) *SubmissionController {
	return &SubmissionController{
		submissions: submissions,
		queries:     queries,
		progress:    progress,
		stream:      stream.withDefaults(),
	}
}

// Register mounts the routes. Everything except the catalogue requires a caller.
func (h *SubmissionController) Register(r gin.IRouter, auth gin.HandlerFunc) {
	api := r.Group("/api/v1")
	api.GET("/problems", h.ListProblems)
	api.GET("/problems/:id", h.GetProblem)
	api.GET("/leaderboard", h.Leaderboard)
	api.GET("/languages", h.Languages)

	authed := api.Group("", auth)
	authed.POST("/problems/:id/submissions", h.Create)
	authed.GET("/problems/:id/submissions", h.History)
	authed.GET("/submissions/:id", h.GetSubmission)
	authed.GET("/submissions/:id/stream", h.Stream)
}

// Create submits source code against a problem.
func (h *SubmissionController) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Authentication required")
		return
	}
	problemID, ok := parseID(c)
	if !ok {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	input := service.SubmitInput{
		UserID:     userID,
		ProblemID:  problemID,
		LanguageID: req.LanguageID,
		SourceCode: req.SourceCode,
	}

	if c.Query("mode") == "async" {
		submission, err := h.submissions.SubmitAsync(c.Request.Context(), input)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, SubmitAcceptedResponse{
			SubmissionID: submission.ID,
			Status:       submission.Status,
			StreamURL:    "/api/v1/submissions/" + submission.ID + "/stream",
		})
		return
	}

	result, err := h.submissions.Submit(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// ListProblems returns the catalogue, matches for ?q= first.
func (h *SubmissionController) ListProblems(c *gin.Context) {
	problems, err := h.queries.ListProblems(c.Request.Context(), strings.TrimSpace(c.Query("q")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, problems)
}

// GetProblem returns one problem with its sample test cases.
func (h *SubmissionController) GetProblem(c *gin.Context) {
	problemID, ok := parseID(c)
	if !ok {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	problem, err := h.queries.GetProblem(c.Request.Context(), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, problem)
}

// History lists the caller's submissions for a problem.
func (h *SubmissionController) History(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Authentication required")
		return
	}
	problemID, ok := parseID(c)
	if !ok {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	items, err := h.queries.History(c.Request.Context(), userID, problemID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, items)
}

// GetSubmission returns one of the caller's submissions with its results.
func (h *SubmissionController) GetSubmission(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Authentication required")
		return
	}
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	detail, err := h.queries.GetSubmission(c.Request.Context(), userID, submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, detail)
}

// Leaderboard returns the top users by points.
func (h *SubmissionController) Leaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.queries.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, entries)
}

// Languages returns the supported languages.
func (h *SubmissionController) Languages(c *gin.Context) {
	response.Success(c, h.queries.Languages())
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// SubmitRequest defines submission payload.
type SubmitRequest struct {
	LanguageID int    `json:"language_id" binding:"required"`
	SourceCode string `json:"source_code" binding:"required"`
}

// SubmitAcceptedResponse is returned for async submissions.
type SubmitAcceptedResponse struct {
	SubmissionID string       `json:"submission_id"`
	Status       model.Status `json:"status"`
	StreamURL    string       `json:"stream_url"`
}
