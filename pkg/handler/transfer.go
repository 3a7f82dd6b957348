package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"paybridge_back/models"
)

// CreateTransfer submits one transfer attempt. The response carries the
// transaction in whatever state it reached: terminal, or PROCESSING when a
// leg settles asynchronously.
func (h *Handler) CreateTransfer(c *gin.Context) {
	var req models.TransferRequest
	if err := c.BindJSON(&req); err != nil {
		newErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.service.Transfer.Create(c.Request.Context(), req)
	if err != nil {
		var verr *models.ValidationError
		var perr *models.PartialSettlementError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "transaction": tx})
		case errors.Is(err, models.ErrWalletNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "transaction": tx})
		case errors.As(err, &perr):
			// One leg settled, the pair did not: surfaced for manual
			// intervention alongside the failed transaction.
			c.JSON(http.StatusConflict, gin.H{"error": perr.Error(), "transaction": tx})
		default:
			newErrorResponse(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	wrapOkJSON(c, map[string]interface{}{
		"transaction": tx,
	})
}

func (h *Handler) GetTransfer(c *gin.Context) {
	tx, err := h.service.Transfer.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		newErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	if tx == nil {
		newErrorResponse(c, http.StatusNotFound, "transaction not found")
		return
	}
	wrapOkJSON(c, map[string]interface{}{
		"transaction": tx,
	})
}

func (h *Handler) GetTransferFee(c *gin.Context) {
	fee, err := h.service.Transfer.GetFee(c.Request.Context(), c.Param("id"))
	if err != nil {
		newErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	if fee == nil {
		newErrorResponse(c, http.StatusNotFound, "fee record not found")
		return
	}
	wrapOkJSON(c, map[string]interface{}{
		"fee": fee,
	})
}
