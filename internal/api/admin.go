package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"finance-ledger-backend/internal/ledger"
	"finance-ledger-backend/internal/store"
)

type bulkUpdateRequest struct {
	TransactionIDs []int64                 `json:"transaction_ids" binding:"required"`
	UpdateData     ledger.TransactionPatch `json:"update_data"`
}

type bulkDeleteRequest struct {
	TransactionIDs []int64 `json:"transaction_ids" binding:"required"`
}

func (s *Server) bulkUpdate(c *gin.Context) {
	var req bulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.svc.BulkUpdate(c.Request.Context(), req.TransactionIDs, req.UpdateData)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) bulkDelete(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.svc.BulkDelete(c.Request.Context(), req.TransactionIDs)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// export streams the filtered transactions as a csv or json attachment.
// Errors after the first row has been written can only be logged.
func (s *Server) export(c *gin.Context) {
	crit, err := bindCriteria(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	format := ledger.ExportFormat(c.DefaultQuery("format", string(ledger.FormatCSV)))
	if !format.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or json"})
		return
	}

	w := &lazyWriter{c: c, format: format}
	n, err := s.svc.Export(c.Request.Context(), crit, format, w)
	if err != nil {
		if !w.started {
			s.fail(c, err)
			return
		}
		s.logger.ErrorContext(c.Request.Context(), "export aborted",
			"rows", n, "request_id", c.GetString(requestIDHeader), "error", err)
		return
	}
	if !w.started {
		w.begin()
	}
}

// lazyWriter defers the response headers until the first byte so that a
// failure before any output can still be reported as a JSON error.
type lazyWriter struct {
	c       *gin.Context
	format  ledger.ExportFormat
	started bool
}

func (w *lazyWriter) begin() {
	w.started = true
	w.c.Header("Content-Type", w.format.ContentType())
	w.c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=transactions.%s", w.format))
	w.c.Status(http.StatusOK)
}

func (w *lazyWriter) Write(p []byte) (int, error) {
	if !w.started {
		w.begin()
	}
	return w.c.Writer.Write(p)
}

// cleanup removes orphaned entities of the given kinds, all kinds when
// none are given.
func (s *Server) cleanup(kinds ...store.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := s.svc.CleanupOrphans(c.Request.Context(), kinds...)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("Cleaned up %d spend categories and %d cost centers",
				report.Deleted(store.KindSpendCategory), report.Deleted(store.KindCostCenter)),
			"report": report,
		})
	}
}
