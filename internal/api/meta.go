package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"finance-ledger-backend/internal/ingest"
)

type nameRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) listCostCenters(c *gin.Context) {
	ccs, err := s.svc.CostCenters(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cost_centers": ccs, "count": len(ccs)})
}

func (s *Server) getCostCenter(c *gin.Context) {
	id, ok := pathID(c, "cost center")
	if !ok {
		return
	}
	cc, err := s.svc.CostCenter(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cc)
}

func (s *Server) createCostCenter(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cc, err := s.svc.GetOrCreateCostCenter(c.Request.Context(), req.Name)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cc)
}

// deleteCostCenter refuses referenced cost centers unless cascade=true,
// which detaches their transactions first.
func (s *Server) deleteCostCenter(c *gin.Context) {
	id, ok := pathID(c, "cost center")
	if !ok {
		return
	}
	var q struct {
		Cascade bool `form:"cascade"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	detached, err := s.svc.DeleteCostCenter(c.Request.Context(), id, q.Cascade)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":               "Cost center deleted successfully",
		"id":                    id,
		"transactions_detached": detached,
	})
}

func (s *Server) listSpendCategories(c *gin.Context) {
	scs, err := s.svc.SpendCategories(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"spend_categories": scs, "count": len(scs)})
}

func (s *Server) getSpendCategory(c *gin.Context) {
	id, ok := pathID(c, "spend category")
	if !ok {
		return
	}
	sc, err := s.svc.SpendCategory(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (s *Server) createSpendCategory(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sc, err := s.svc.GetOrCreateSpendCategory(c.Request.Context(), req.Name)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (s *Server) deleteSpendCategory(c *gin.Context) {
	id, ok := pathID(c, "spend category")
	if !ok {
		return
	}
	if err := s.svc.DeleteSpendCategory(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Spend category deleted successfully",
		"id":      id,
	})
}

func (s *Server) accounts(c *gin.Context) {
	accounts, err := s.svc.Accounts(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, accounts)
}

func (s *Server) dateRange(c *gin.Context) {
	r, err := s.svc.DateRange(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) stats(c *gin.Context) {
	st, err := s.svc.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// uploadCSV imports one institution export sent as the multipart "file"
// field. The whole file is stored or nothing is.
func (s *Server) uploadCSV(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)

	inst, err := ingest.ParseInstitution(c.PostForm("institution"))
	if err != nil {
		s.fail(c, err)
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, fmt.Errorf("file: %w", err))
		return
	}
	f, err := header.Open()
	if err != nil {
		s.fail(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()

	res, err := ingest.Parse(f, inst)
	if err != nil {
		s.fail(c, err)
		return
	}
	imported, err := s.svc.Import(c.Request.Context(), res.Records)
	if err != nil {
		s.fail(c, err)
		return
	}

	skipped := make([]gin.H, 0, len(res.Skipped))
	for _, rowErr := range res.Skipped {
		skipped = append(skipped, gin.H{"line": rowErr.Line, "error": rowErr.Err.Error()})
	}
	s.logger.InfoContext(c.Request.Context(), "csv imported",
		"institution", inst, "file", header.Filename, "imported", imported, "skipped", len(skipped))
	c.JSON(http.StatusOK, gin.H{
		"message":     fmt.Sprintf("Successfully imported %d transactions", imported),
		"institution": inst,
		"imported":    imported,
		"skipped":     skipped,
	})
}
