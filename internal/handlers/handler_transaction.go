package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/primebank/agent_banking_core/internal/core/domain"
	portssvc "github.com/primebank/agent_banking_core/internal/core/ports/services"
	"github.com/primebank/agent_banking_core/internal/dto"
	"github.com/primebank/agent_banking_core/internal/middleware"
)

// transactionHandler handles HTTP requests related to transactions.
type transactionHandler struct {
	transactionService portssvc.TransactionSvcFacade
	processingService  portssvc.ProcessingSvcFacade
	holdService        portssvc.HoldSvcFacade
}

func newTransactionHandler(ts portssvc.TransactionSvcFacade, ps portssvc.ProcessingSvcFacade, hs portssvc.HoldSvcFacade) *transactionHandler {
	return &transactionHandler{
		transactionService: ts,
		processingService:  ps,
		holdService:        hs,
	}
}

// registerTransactionRoutes registers routes related to transactions.
func registerTransactionRoutes(rg *gin.RouterGroup, services *portssvc.ServiceContainer) {
	h := newTransactionHandler(services.Transaction, services.Processing, services.Hold)

	transactions := rg.Group("/transactions")
	{
		transactions.POST("/withdrawals", h.createWithdrawal)
		transactions.POST("/deposits", h.createDeposit)
		transactions.GET("/:id", h.getTransaction)
		transactions.POST("/:id/verify", h.verifyCustomer)
		transactions.POST("/:id/approve", h.approveTransaction)
		transactions.POST("/:id/reject", h.rejectTransaction)
		transactions.POST("/:id/cancel", h.cancelTransaction)
		transactions.POST("/:id/process", h.processTransaction)
		transactions.POST("/:id/reverse", h.reverseTransaction)
		transactions.POST("/:id/retry", h.retryTransaction)
		transactions.POST("/:id/hold", h.placeHold)
		transactions.DELETE("/:id/hold", h.releaseHold)
		transactions.POST("/process-batch", h.processBatch)
	}
	rg.GET("/accounts/:id/transactions", h.listAccountTransactions)
}

// createWithdrawal creates a pending withdrawal for an agent.
func (h *transactionHandler) createWithdrawal(c *gin.Context) {
	h.create(c, h.transactionService.CreateWithdrawal)
}

// createDeposit creates a pending deposit for an agent.
func (h *transactionHandler) createDeposit(c *gin.Context) {
	h.create(c, h.transactionService.CreateDeposit)
}

func (h *transactionHandler) create(c *gin.Context, fn func(ctx context.Context, req dto.CreateTransactionRequest, agentID string) (*domain.Transaction, error)) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for create transaction", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	agentID, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	txn, err := fn(c.Request.Context(), req, agentID)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to create transaction")
		return
	}
	c.JSON(http.StatusCreated, dto.ToTransactionResponse(txn))
}

// getTransaction retrieves a transaction by ID.
func (h *transactionHandler) getTransaction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	txn, err := h.transactionService.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, logger, err, "Failed to retrieve transaction")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

// listAccountTransactions retrieves a page of an account's transactions.
func (h *transactionHandler) listAccountTransactions(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txns, err := h.transactionService.ListAccountTransactions(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to list transactions")
		return
	}

	responses := make([]dto.TransactionResponse, len(txns))
	for i := range txns {
		responses[i] = dto.ToTransactionResponse(&txns[i])
	}
	c.JSON(http.StatusOK, gin.H{"transactions": responses})
}

// verifyCustomer records one identity verification on a transaction.
func (h *transactionHandler) verifyCustomer(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.VerifyCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	agentID, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	txn, err := h.transactionService.VerifyCustomer(c.Request.Context(), c.Param("id"), req, agentID)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to verify customer")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

// approveTransaction approves a pending transaction directly.
func (h *transactionHandler) approveTransaction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.ApproveTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	txn, err := h.transactionService.Approve(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to approve transaction")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

// rejectTransaction rejects a pending transaction.
func (h *transactionHandler) rejectTransaction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.RejectTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	txn, err := h.transactionService.Reject(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to reject transaction")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

// cancelTransaction cancels a pre-processing transaction.
func (h *transactionHandler) cancelTransaction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.CancelTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	txn, err := h.transactionService.Cancel(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to cancel transaction")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

// processTransaction runs the processing unit for an approved transaction.
func (h *transactionHandler) processTransaction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	receipt, err := h.processingService.ProcessTransaction(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to process transaction")
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// reverseTransaction reverses a completed transaction within the window.
func (h *transactionHandler) reverseTransaction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.ReverseTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	reversal, err := h.processingService.ReverseTransaction(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to reverse transaction")
		return
	}
	c.JSON(http.StatusCreated, dto.ToTransactionResponse(reversal))
}

// retryTransaction resets a failed transaction for another attempt.
func (h *transactionHandler) retryTransaction(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	txn, err := h.processingService.Retry(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to retry transaction")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

// placeHold reserves funds for a transaction.
func (h *transactionHandler) placeHold(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.PlaceHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	txn, err := h.holdService.PlaceHold(c.Request.Context(), c.Param("id"), req.Amount, req.ExpiryMinutes, actor)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to place hold")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

// releaseHold releases a transaction's active hold.
func (h *transactionHandler) releaseHold(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	txn, err := h.holdService.ReleaseHold(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to release hold")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

// processBatch processes many transactions with bounded concurrency.
func (h *transactionHandler) processBatch(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req struct {
		TransactionIDs []string `json:"transactionIDs" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	results := h.processingService.ProcessBatch(c.Request.Context(), req.TransactionIDs, actor)
	out := make(map[string]string, len(results))
	succeeded := 0
	for id, err := range results {
		if err == nil {
			out[id] = "completed"
			succeeded++
			continue
		}
		out[id] = err.Error()
	}
	logger.Info("Batch processed", slog.Int("total", len(results)), slog.Int("succeeded", succeeded))
	c.JSON(http.StatusOK, gin.H{"results": out, "succeeded": succeeded, "failed": len(results) - succeeded})
}
