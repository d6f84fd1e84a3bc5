package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	customerdomain "github.com/openisp/netbill/internal/customer/domain"
	"github.com/openisp/netbill/pkg/db/pagination"
)

func (s *Server) OnboardCustomer(c *gin.Context) {
	var req customerdomain.OnboardCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.customerSvc.Onboard(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListCustomers(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status    string `form:"status"`
		PackageID string `form:"package_id"`
		Search    string `form:"q"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := customerdomain.ListCustomersRequest{Pagination: query.Pagination}
	if status := strings.TrimSpace(query.Status); status != "" {
		parsed := customerdomain.CustomerStatus(strings.ToUpper(status))
		if !parsed.Valid() {
			AbortWithError(c, newValidationError("status", "invalid_customer_status", "invalid customer status"))
			return
		}
		req.Status = &parsed
	}
	if packageID := strings.TrimSpace(query.PackageID); packageID != "" {
		req.PackageID = &packageID
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		req.Search = &search
	}

	customers, pageInfo, err := s.customerSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": customers, "page_info": pageInfo})
}

func (s *Server) GetCustomerByID(c *gin.Context) {
	resp, err := s.customerSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ChangeCustomerStatus(c *gin.Context) {
	var req customerdomain.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.customerSvc.ChangeStatus(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
