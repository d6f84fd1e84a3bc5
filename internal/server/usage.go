package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/openisp/netbill/internal/invoice/domain"
	usagedomain "github.com/openisp/netbill/internal/usage/domain"
)

func (s *Server) IngestUsage(c *gin.Context) {
	var req usagedomain.IngestUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.usageSvc.Ingest(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ListCustomerUsage returns one month of daily records, defaulting to the
// current month.
func (s *Server) ListCustomerUsage(c *gin.Context) {
	var query struct {
		Month string `form:"month"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	period := invoicedomain.PeriodOf(s.clock.Now())
	if month := strings.TrimSpace(query.Month); month != "" {
		parsed, err := invoicedomain.ParsePeriod(month)
		if err != nil {
			AbortWithError(c, newValidationError("month", "invalid_billing_period", "invalid billing period"))
			return
		}
		period = parsed
	}

	records, err := s.usageSvc.ForPeriod(
		c.Request.Context(),
		strings.TrimSpace(c.Param("id")),
		period.Start(),
		period.End(),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  records,
		"month": period.String(),
	})
}
