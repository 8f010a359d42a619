package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"finance-ledger-backend/internal/aggregate"
	"finance-ledger-backend/internal/filter"
	"finance-ledger-backend/internal/model"
)

const defaultTopN = 10

func parseDimension(field, v string) (filter.Dimension, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "account":
		return filter.DimensionAccount, nil
	case "", "cost_center":
		return filter.DimensionCostCenter, nil
	case "spend_category":
		return filter.DimensionSpendCategory, nil
	}
	return 0, model.Invalid(field, "must be one of cost_center, spend_category, account")
}

// totals handles GET /api/analytics/totals?group_by=...
func (s *Server) totals(c *gin.Context) {
	crit, err := bindCriteria(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	d, err := parseDimension("group_by", c.Query("group_by"))
	if err != nil {
		s.fail(c, err)
		return
	}
	res, err := s.svc.Totals(c.Request.Context(), d, crit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) comprehensiveTotals(c *gin.Context) {
	crit, err := bindCriteria(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	res, err := s.svc.Comprehensive(c.Request.Context(), crit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) costCenterTotal(c *gin.Context) {
	id, ok := pathID(c, "cost center")
	if !ok {
		return
	}
	crit, err := bindCriteria(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	total, err := s.svc.CostCenterTotal(c.Request.Context(), id, crit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cost_center_id": id, "total": total})
}

func (s *Server) spendCategoryTotal(c *gin.Context) {
	id, ok := pathID(c, "spend category")
	if !ok {
		return
	}
	crit, err := bindCriteria(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	total, err := s.svc.SpendCategoryTotal(c.Request.Context(), id, crit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"spend_category_id": id, "total": total})
}

// top ranks cost centers or spend categories. limit is the number of
// entries here, not a page size.
func (s *Server) top(c *gin.Context) {
	var q struct {
		By    string `form:"by"`
		Limit *int   `form:"limit"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	crit, err := bindCriteria(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if q.By == "" {
		q.By = "spend_category"
	}
	d, err := parseDimension("by", q.By)
	if err != nil {
		s.fail(c, err)
		return
	}
	n := defaultTopN
	if q.Limit != nil {
		n = *q.Limit
	}
	items, err := s.svc.Top(c.Request.Context(), d, n, crit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"by": q.By, "limit": n, "top_items": items})
}

func (s *Server) searchTotal(c *gin.Context) {
	crit, err := bindCriteria(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	total, err := s.svc.SearchTotal(c.Request.Context(), crit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"search_term": *crit.Search, "total": total})
}

func (s *Server) accountSummary(c *gin.Context) {
	crit, err := bindCriteria(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	accounts, err := s.svc.AccountSummary(c.Request.Context(), crit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

// trends handles GET /api/analytics/trends?group_by=week|month&dimension=...
func (s *Server) trends(c *gin.Context) {
	crit, err := bindCriteria(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	b := aggregate.Bucket(c.DefaultQuery("group_by", string(aggregate.Month)))
	dim := aggregate.Dimension(c.DefaultQuery("dimension", string(aggregate.DimCostCenter)))
	res, err := s.svc.Trends(c.Request.Context(), b, dim, crit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// breakdown serves /weekly and /monthly. cost_center_id drills into one
// cost center's spend categories.
func (s *Server) breakdown(c *gin.Context) {
	crit, err := bindCriteria(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	b := aggregate.Month
	if strings.HasSuffix(c.FullPath(), "/weekly") {
		b = aggregate.Week
	}
	var costCenterID *int64
	if v := c.Query("cost_center_id"); v != "" {
		id, err := parseID(v)
		if err != nil {
			s.fail(c, model.Invalid("cost_center_id", "invalid id %q", v))
			return
		}
		costCenterID = &id
	}
	res, err := s.svc.Breakdown(c.Request.Context(), b, costCenterID, crit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) monthlyTotals(c *gin.Context) {
	crit, err := bindCriteria(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	totals, err := s.svc.MonthlyTotals(c.Request.Context(), crit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"monthly_totals": totals})
}
