package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/primebank/agent_banking_core/internal/core/domain"
	portssvc "github.com/primebank/agent_banking_core/internal/core/ports/services"
	"github.com/primebank/agent_banking_core/internal/dto"
	"github.com/primebank/agent_banking_core/internal/middleware"
)

// approvalHandler handles HTTP requests related to approval workflows.
type approvalHandler struct {
	approvalService portssvc.ApprovalSvcFacade
}

func newApprovalHandler(as portssvc.ApprovalSvcFacade) *approvalHandler {
	return &approvalHandler{approvalService: as}
}

// registerApprovalRoutes registers routes related to approval workflows.
func registerApprovalRoutes(rg *gin.RouterGroup, services *portssvc.ServiceContainer) {
	h := newApprovalHandler(services.Approval)

	approvals := rg.Group("/approvals")
	{
		approvals.GET("/:id", h.getWorkflow)
		approvals.POST("/:id/assign", h.assign)
		approvals.POST("/:id/reassign", h.reassign)
		approvals.POST("/:id/start-review", h.startReview)
		approvals.POST("/:id/approve", h.approve)
		approvals.POST("/:id/reject", h.reject)
		approvals.POST("/:id/escalate", h.escalate)
		approvals.POST("/:id/checklist", h.completeChecklistItem)
		approvals.POST("/bulk-approve", h.bulkApprove)
		approvals.POST("/bulk-reject", h.bulkReject)
	}
	rg.GET("/queues/:queue", h.listQueue)
	rg.GET("/transactions/:id/approval", h.getWorkflowForTransaction)
}

// getWorkflow retrieves a workflow by ID.
func (h *approvalHandler) getWorkflow(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	wf, err := h.approvalService.GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, logger, err, "Failed to retrieve workflow")
		return
	}
	c.JSON(http.StatusOK, dto.ToWorkflowResponse(wf, time.Now().UTC()))
}

// getWorkflowForTransaction retrieves the workflow linked to a transaction.
func (h *approvalHandler) getWorkflowForTransaction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	wf, err := h.approvalService.GetWorkflowForTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, logger, err, "Failed to retrieve workflow")
		return
	}
	c.JSON(http.StatusOK, dto.ToWorkflowResponse(wf, time.Now().UTC()))
}

// listQueue retrieves open workflows for a review queue, most urgent first.
func (h *approvalHandler) listQueue(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	wfs, err := h.approvalService.ListQueue(c.Request.Context(), c.Param("queue"), limit)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to list queue")
		return
	}

	now := time.Now().UTC()
	responses := make([]dto.WorkflowResponse, len(wfs))
	for i := range wfs {
		responses[i] = dto.ToWorkflowResponse(&wfs[i], now)
	}
	c.JSON(http.StatusOK, gin.H{"workflows": responses})
}

// assign assigns an unassigned workflow to a reviewer.
func (h *approvalHandler) assign(c *gin.Context) {
	h.assignWith(c, h.approvalService.Assign)
}

// reassign moves a workflow to a new reviewer.
func (h *approvalHandler) reassign(c *gin.Context) {
	h.assignWith(c, h.approvalService.Reassign)
}

func (h *approvalHandler) assignWith(c *gin.Context, fn func(ctx context.Context, workflowID string, req dto.AssignWorkflowRequest, assigner string) (*domain.ApprovalWorkflow, error)) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.AssignWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	wf, err := fn(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to assign workflow")
		return
	}
	c.JSON(http.StatusOK, dto.ToWorkflowResponse(wf, time.Now().UTC()))
}

// startReview moves an assigned workflow into review.
func (h *approvalHandler) startReview(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	wf, err := h.approvalService.StartReview(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to start review")
		return
	}
	c.JSON(http.StatusOK, dto.ToWorkflowResponse(wf, time.Now().UTC()))
}

// approve approves an in-review workflow.
func (h *approvalHandler) approve(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.ApproveWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	wf, err := h.approvalService.Approve(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to approve workflow")
		return
	}
	c.JSON(http.StatusOK, dto.ToWorkflowResponse(wf, time.Now().UTC()))
}

// reject rejects an in-review workflow.
func (h *approvalHandler) reject(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.RejectWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	wf, err := h.approvalService.Reject(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to reject workflow")
		return
	}
	c.JSON(http.StatusOK, dto.ToWorkflowResponse(wf, time.Now().UTC()))
}

// escalate moves a workflow one level up the hierarchy.
func (h *approvalHandler) escalate(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.EscalateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	wf, err := h.approvalService.Escalate(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to escalate workflow")
		return
	}
	c.JSON(http.StatusOK, dto.ToWorkflowResponse(wf, time.Now().UTC()))
}

// completeChecklistItem marks one checklist item done.
func (h *approvalHandler) completeChecklistItem(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.CompleteChecklistItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	wf, err := h.approvalService.CompleteChecklistItem(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to complete checklist item")
		return
	}
	c.JSON(http.StatusOK, dto.ToWorkflowResponse(wf, time.Now().UTC()))
}

// bulkApprove applies Approve per workflow independently.
func (h *approvalHandler) bulkApprove(c *gin.Context) {
	h.bulk(c, h.approvalService.BulkApprove)
}

// bulkReject applies Reject per workflow independently.
func (h *approvalHandler) bulkReject(c *gin.Context) {
	h.bulk(c, h.approvalService.BulkReject)
}

func (h *approvalHandler) bulk(c *gin.Context, fn func(ctx context.Context, req dto.BulkDecisionRequest, actor string) (*dto.BulkDecisionResult, error)) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.BulkDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	result, err := fn(c.Request.Context(), req, actor)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to apply bulk decision")
		return
	}
	c.JSON(http.StatusOK, result)
}
