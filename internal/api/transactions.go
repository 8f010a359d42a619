package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"finance-ledger-backend/internal/ledger"
)

const defaultRecentLimit = 25

// listTransactions returns the transactions matching the query filters.
func (s *Server) listTransactions(c *gin.Context) {
	crit, err := bindCriteria(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	page, err := s.svc.List(c.Request.Context(), crit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) recentTransactions(c *gin.Context) {
	var q struct {
		Limit   *int   `form:"limit"`
		Account string `form:"account"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	limit := defaultRecentLimit
	if q.Limit != nil {
		limit = *q.Limit
	}
	txns, err := s.svc.Recent(c.Request.Context(), limit, q.Account)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": txns,
		"count":        len(txns),
	})
}

func (s *Server) getTransaction(c *gin.Context) {
	id, ok := pathID(c, "transaction")
	if !ok {
		return
	}
	t, err := s.svc.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// createTransaction handles POST /api/transactions
func (s *Server) createTransaction(c *gin.Context) {
	var in ledger.NewTransaction
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	t, err := s.svc.Create(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) updateTransaction(c *gin.Context) {
	id, ok := pathID(c, "transaction")
	if !ok {
		return
	}
	var patch ledger.TransactionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	t, report, err := s.svc.Update(c.Request.Context(), id, patch)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transaction": t,
		"cleanup":     report,
	})
}

// deleteTransaction handles DELETE /api/transactions/:id
func (s *Server) deleteTransaction(c *gin.Context) {
	id, ok := pathID(c, "transaction")
	if !ok {
		return
	}
	report, err := s.svc.Delete(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Transaction deleted successfully",
		"id":      id,
		"cleanup": report,
	})
}
