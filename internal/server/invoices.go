package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/openisp/netbill/internal/invoice/domain"
	"github.com/openisp/netbill/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

type generateInvoicesRequest struct {
	Month string `json:"month" binding:"required"`
}

func (s *Server) GenerateInvoices(c *gin.Context) {
	var req generateInvoicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.GenerateMonthly(c.Request.Context(), strings.TrimSpace(req.Month))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) MarkInvoicesOverdue(c *gin.Context) {
	count, err := s.invoiceSvc.MarkOverdue(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"marked_overdue": count}})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status     string `form:"status"`
		CustomerID string `form:"customer_id"`
		Month      string `form:"month"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := invoicedomain.ListInvoicesRequest{Pagination: query.Pagination}
	if status := strings.TrimSpace(query.Status); status != "" {
		parsed := invoicedomain.InvoiceStatus(strings.ToUpper(status))
		req.Status = &parsed
	}
	if customerID := strings.TrimSpace(query.CustomerID); customerID != "" {
		req.CustomerID = &customerID
	}
	if month := strings.TrimSpace(query.Month); month != "" {
		req.Month = &month
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	resp, err := s.invoiceSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateInvoiceRequest struct {
	Discount *decimal.Decimal `json:"discount"`
	Notes    *string          `json:"notes"`
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	var req updateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Discount == nil && req.Notes == nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), invoicedomain.UpdateInvoiceRequest{
		Discount: req.Discount,
		Notes:    req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetInvoicePDF redirects to the exported document for the invoice, when one
// exists.
func (s *Server) GetInvoicePDF(c *gin.Context) {
	resp, err := s.invoiceSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp.PDFURL == nil || *resp.PDFURL == "" {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.Redirect(http.StatusFound, *resp.PDFURL)
}
