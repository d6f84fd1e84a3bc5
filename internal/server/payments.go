package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/openisp/netbill/internal/payment/domain"
	"github.com/openisp/netbill/pkg/db/pagination"
)

func (s *Server) RecordPayment(c *gin.Context) {
	var req paymentdomain.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Method = paymentdomain.PaymentMethod(strings.ToUpper(string(req.Method)))

	resp, err := s.paymentSvc.RecordPayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ProcessOnlinePayment(c *gin.Context) {
	var req paymentdomain.GatewayPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Method = paymentdomain.PaymentMethod(strings.ToUpper(string(req.Method)))

	resp, err := s.paymentSvc.ProcessGatewayPayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) RefundPayment(c *gin.Context) {
	var req paymentdomain.RefundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.RefundPayment(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListPayments(c *gin.Context) {
	var query struct {
		pagination.Pagination
		CustomerID string `form:"customer_id"`
		InvoiceID  string `form:"invoice_id"`
		Method     string `form:"method"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := paymentdomain.ListPaymentsRequest{Pagination: query.Pagination}
	if customerID := strings.TrimSpace(query.CustomerID); customerID != "" {
		req.CustomerID = &customerID
	}
	if invoiceID := strings.TrimSpace(query.InvoiceID); invoiceID != "" {
		req.InvoiceID = &invoiceID
	}
	if method := strings.TrimSpace(query.Method); method != "" {
		req.Method = &method
	}

	resp, err := s.paymentSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Payments, "page_info": resp.PageInfo})
}

func (s *Server) GetPaymentByID(c *gin.Context) {
	resp, err := s.paymentSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
