package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/openisp/netbill/internal/catalog/domain"
	"github.com/openisp/netbill/internal/clock"
	"github.com/openisp/netbill/internal/config"
	"github.com/openisp/netbill/internal/events"
	"github.com/openisp/netbill/internal/invoice/calculator"
	invoicedomain "github.com/openisp/netbill/internal/invoice/domain"
	"github.com/openisp/netbill/internal/notify"
	"github.com/openisp/netbill/internal/observability/metrics"
	"github.com/openisp/netbill/internal/providers/pdf"
	usagedomain "github.com/openisp/netbill/internal/usage/domain"
	"github.com/openisp/netbill/pkg/db"
	"github.com/openisp/netbill/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// defaultCustomerTimeout bounds one customer inside a generation run when no
// override is configured. A timeout is a per-customer failure, never a run
// abort.
const defaultCustomerTimeout = 30 * time.Second

var errAlreadyBilled = errors.New("already_billed")

type Params struct {
	fx.In

	Cfg      config.Config
	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Billing  *config.BillingConfigHolder
	Notifier notify.Notifier
	PDF      pdf.Provider
	Metrics  *metrics.Metrics
}

type Service struct {
	cfg             config.Config
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	billing         *config.BillingConfigHolder
	notifier        notify.Notifier
	pdf             pdf.Provider
	metrics         *metrics.Metrics
	customerTimeout time.Duration
}

func NewService(p Params) invoicedomain.Service {
	timeout := p.Cfg.GenerationCustomerTimeout
	if timeout <= 0 {
		timeout = defaultCustomerTimeout
	}
	return &Service{
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log.Named("invoice.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		billing:         p.Billing,
		notifier:        p.Notifier,
		pdf:             p.PDF,
		metrics:         p.Metrics,
		customerTimeout: timeout,
	}
}

// billableCustomer is the joined customer+package row the generation run
// reads. Raw columns keep this package from depending on the customer and
// catalog services.
type billableCustomer struct {
	ID      snowflake.ID `gorm:"column:id"`
	Code    string       `gorm:"column:code"`
	Name    string       `gorm:"column:name"`
	Email   string       `gorm:"column:email"`
	Phone   string       `gorm:"column:phone"`
	Address string       `gorm:"column:address"`

	PackageName  string          `gorm:"column:package_name"`
	MonthlyPrice decimal.Decimal `gorm:"column:monthly_price"`
	DataLimit    string          `gorm:"column:data_limit"`
	TaxRate      decimal.Decimal `gorm:"column:tax_rate"`
}

func (s *Service) GenerateMonthly(ctx context.Context, month string) (invoicedomain.GenerationResult, error) {
	period, err := invoicedomain.ParsePeriod(strings.TrimSpace(month))
	if err != nil {
		return invoicedomain.GenerationResult{}, invoicedomain.ErrInvalidPeriod
	}

	started := s.clock.Now()
	policy := s.billing.Get()
	calcPolicy := calculator.PolicyFrom(policy)

	var customers []billableCustomer
	err = s.db.WithContext(ctx).Raw(
		`SELECT c.id, c.code, c.name, c.email, c.phone, c.address,
		        p.name AS package_name, p.monthly_price, p.data_limit, p.tax_rate
		 FROM customers c
		 JOIN packages p ON p.id = c.package_id
		 WHERE c.status = ? AND p.is_active = ?
		 ORDER BY c.id`,
		"ACTIVE", true,
	).Scan(&customers).Error
	if err != nil {
		return invoicedomain.GenerationResult{}, err
	}

	result := invoicedomain.GenerationResult{Month: period.String()}
	for _, cust := range customers {
		cctx, cancel := context.WithTimeout(ctx, s.customerTimeout)
		invoice, err := s.generateForCustomer(cctx, cust, period, calcPolicy, policy.DueDayOfMonth)
		cancel()

		switch {
		case errors.Is(err, errAlreadyBilled):
			result.Skipped++
			s.metrics.InvoicesSkipped.Inc()
		case err != nil:
			result.Skipped++
			result.Errors = append(result.Errors, invoicedomain.GenerationError{
				CustomerID: cust.ID.String(),
				Error:      err.Error(),
			})
			s.metrics.InvoicesSkipped.Inc()
			s.metrics.InvoicesFailed.Inc()
			s.log.Error("invoice generation failed for customer",
				zap.String("customer_id", cust.ID.String()),
				zap.String("month", period.String()),
				zap.Error(err),
			)
		default:
			result.Generated++
			s.metrics.InvoicesGenerated.Inc()
			s.afterGenerate(ctx, invoice, cust, policy.Currency)
		}
	}

	s.metrics.GenerationSeconds.Observe(s.clock.Now().Sub(started).Seconds())
	s.log.Info("generation run finished",
		zap.String("month", period.String()),
		zap.Int("generated", result.Generated),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func (s *Service) generateForCustomer(
	ctx context.Context,
	cust billableCustomer,
	period invoicedomain.Period,
	policy calculator.Policy,
	dueDay int,
) (invoicedomain.Invoice, error) {
	now := s.clock.Now()
	var invoice invoicedomain.Invoice

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked struct {
			ID snowflake.ID `gorm:"column:id"`
		}
		if err := tx.Raw(
			`SELECT id FROM customers WHERE id = ?`+db.LockSuffix(tx),
			cust.ID,
		).Scan(&locked).Error; err != nil {
			return err
		}

		var existing int64
		if err := tx.Raw(
			`SELECT COUNT(1) FROM invoices WHERE customer_id = ? AND month = ?`,
			cust.ID, period.String(),
		).Scan(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return errAlreadyBilled
		}

		var usage []usagedomain.UsageRecord
		if err := tx.
			Where("customer_id = ? AND date >= ? AND date < ?", cust.ID, period.Start(), period.End()).
			Order("date").
			Find(&usage).Error; err != nil {
			return err
		}

		var overdueRows []struct {
			DueAmount decimal.Decimal `gorm:"column:due_amount"`
			DueDate   time.Time       `gorm:"column:due_date"`
		}
		if err := tx.Raw(
			`SELECT due_amount, due_date FROM invoices
			 WHERE customer_id = ? AND status = ?`,
			cust.ID, invoicedomain.InvoiceStatusOverdue,
		).Scan(&overdueRows).Error; err != nil {
			return err
		}
		overdue := make([]calculator.OverdueInvoice, 0, len(overdueRows))
		for _, row := range overdueRows {
			overdue = append(overdue, calculator.OverdueInvoice{
				DueAmount: row.DueAmount,
				DueDate:   row.DueDate,
			})
		}

		pkg := catalogdomain.Package{
			Name:         cust.PackageName,
			MonthlyPrice: cust.MonthlyPrice,
			DataLimit:    cust.DataLimit,
			TaxRate:      cust.TaxRate,
		}
		breakdown := calculator.Compute(pkg, usage, overdue, policy, now)

		invoice = invoicedomain.Invoice{
			ID:            s.genID.Generate(),
			InvoiceNumber: invoicedomain.NewInvoiceNumber(),
			CustomerID:    cust.ID,
			Month:         period.String(),
			IssueDate:     now,
			DueDate:       period.DueDate(dueDay),
			Amount:        breakdown.Base,
			UsageCharge:   breakdown.UsageCharge,
			LateFee:       breakdown.LateFee,
			VAT:           breakdown.VAT,
			Discount:      decimal.Zero,
			TotalAmount:   breakdown.Total,
			PaidAmount:    decimal.Zero,
			DueAmount:     breakdown.Total,
			Status:        invoicedomain.InvoiceStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Omit("Items").Create(&invoice).Error; err != nil {
			// A concurrent run can win the uniqueness race after our
			// existence check.
			if db.IsDuplicateKeyErr(err) {
				return errAlreadyBilled
			}
			return err
		}

		items := s.buildItems(invoice.ID, cust, breakdown, policy, now)
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
		invoice.Items = items

		return tx.Exec(
			`UPDATE customers SET balance = balance + ?, updated_at = ? WHERE id = ?`,
			breakdown.Total, now, cust.ID,
		).Error
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return invoice, nil
}

func (s *Service) buildItems(
	invoiceID snowflake.ID,
	cust billableCustomer,
	breakdown calculator.ChargeBreakdown,
	policy calculator.Policy,
	now time.Time,
) []invoicedomain.InvoiceItem {
	one := decimal.NewFromInt(1)
	items := []invoicedomain.InvoiceItem{
		{
			ID:          s.genID.Generate(),
			InvoiceID:   invoiceID,
			Description: "Monthly bill for " + cust.PackageName,
			Quantity:    one,
			UnitPrice:   breakdown.Base,
			Total:       breakdown.Base,
			CreatedAt:   now,
		},
	}
	if breakdown.UsageCharge.IsPositive() {
		items = append(items, invoicedomain.InvoiceItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoiceID,
			Description: fmt.Sprintf("Extra data usage (%s GB)", breakdown.OverageGB.StringFixed(2)),
			Quantity:    breakdown.OverageGB.Round(4),
			UnitPrice:   policy.OverageRatePerGB,
			Total:       breakdown.UsageCharge,
			CreatedAt:   now,
		})
	}
	if breakdown.LateFee.IsPositive() {
		items = append(items, invoicedomain.InvoiceItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoiceID,
			Description: "Late payment fee",
			Quantity:    one,
			UnitPrice:   breakdown.LateFee,
			Total:       breakdown.LateFee,
			CreatedAt:   now,
		})
	}
	if breakdown.VAT.IsPositive() {
		items = append(items, invoicedomain.InvoiceItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoiceID,
			Description: fmt.Sprintf("VAT (%s%%)", cust.TaxRate.String()),
			Quantity:    one,
			UnitPrice:   breakdown.VAT,
			Total:       breakdown.VAT,
			CreatedAt:   now,
		})
	}
	return items
}

// afterGenerate runs the non-transactional side effects. The invoice is
// already committed; failures here are logged and never unwind it.
func (s *Service) afterGenerate(ctx context.Context, invoice invoicedomain.Invoice, cust billableCustomer, currency string) {
	if url, err := s.exportPDF(ctx, &invoice, cust, currency); err != nil {
		s.log.Warn("invoice pdf export failed",
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.Error(err),
		)
	} else if url != "" {
		if err := s.db.WithContext(ctx).Exec(
			`UPDATE invoices SET pdf_url = ? WHERE id = ?`,
			url, invoice.ID,
		).Error; err != nil {
			s.log.Warn("invoice pdf_url update failed",
				zap.String("invoice_number", invoice.InvoiceNumber),
				zap.Error(err),
			)
		}
	}

	s.notifier.NotifyCustomer(ctx, notify.CustomerMessage{
		Email:   cust.Email,
		Phone:   cust.Phone,
		Subject: fmt.Sprintf("Invoice %s for %s", invoice.InvoiceNumber, invoice.Month),
		HTMLBody: fmt.Sprintf(
			"<p>Hi %s,</p><p>Your invoice <b>%s</b> for %s is ready. Amount due: <b>%s %s</b> by %s.</p>",
			cust.Name, invoice.InvoiceNumber, invoice.Month,
			currency, invoice.DueAmount.StringFixed(2),
			invoice.DueDate.Format("2006-01-02"),
		),
		SMSText: fmt.Sprintf(
			"NetBill: invoice %s for %s, %s %s due %s.",
			invoice.InvoiceNumber, invoice.Month,
			currency, invoice.DueAmount.StringFixed(2),
			invoice.DueDate.Format("2006-01-02"),
		),
	})
	s.notifier.NotifyAdmin(ctx, events.Event{
		Type:       events.TypeInvoiceGenerated,
		CustomerID: cust.ID.String(),
		Detail: map[string]any{
			"invoice_number": invoice.InvoiceNumber,
			"month":          invoice.Month,
			"total":          invoice.TotalAmount.StringFixed(2),
		},
		OccurredAt: s.clock.Now(),
	})
}

func (s *Service) exportPDF(ctx context.Context, invoice *invoicedomain.Invoice, cust billableCustomer, currency string) (string, error) {
	lines := make([]pdf.LineItem, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		lines = append(lines, pdf.LineItem{
			Description: item.Description,
			Quantity:    item.Quantity.String(),
			UnitPrice:   currency + " " + item.UnitPrice.StringFixed(2),
			Total:       currency + " " + item.Total.StringFixed(2),
		})
	}

	subtotal := invoice.Amount.Add(invoice.UsageCharge).Add(invoice.LateFee)
	data := pdf.InvoiceData{
		CompanyName:     s.cfg.AppName,
		CompanyEmail:    s.cfg.SMTPFrom,
		InvoiceNumber:   invoice.InvoiceNumber,
		IssueDate:       invoice.IssueDate.Format("2006-01-02"),
		DueDate:         invoice.DueDate.Format("2006-01-02"),
		BillingMonth:    invoice.Month,
		CustomerName:    cust.Name,
		CustomerCode:    cust.Code,
		CustomerAddress: cust.Address,
		CustomerEmail:   cust.Email,
		Items:           lines,
		Subtotal:        currency + " " + subtotal.StringFixed(2),
		VAT:             currency + " " + invoice.VAT.StringFixed(2),
		Total:           currency + " " + invoice.TotalAmount.StringFixed(2),
		AmountDue:       currency + " " + invoice.DueAmount.StringFixed(2),
		Status:          string(invoice.Status),
	}
	if invoice.Discount.IsPositive() {
		data.Discount = currency + " " + invoice.Discount.StringFixed(2)
	}

	reader, err := s.pdf.GenerateInvoice(ctx, data)
	if err != nil {
		return "", err
	}
	if reader == nil {
		return "", nil
	}

	if err := os.MkdirAll(s.cfg.InvoiceDir, 0o755); err != nil {
		return "", err
	}
	filename := invoice.InvoiceNumber + ".pdf"
	out, err := os.Create(filepath.Join(s.cfg.InvoiceDir, filename))
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := out.ReadFrom(reader); err != nil {
		return "", err
	}

	return s.cfg.BaseURL + "/files/invoices/" + filename, nil
}

// MarkOverdue flips past-due pending invoices. Partially paid invoices keep
// PARTIAL_PAID, matching the derived-status rule.
func (s *Service) MarkOverdue(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	result := s.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND due_date < ? AND due_amount > 0`,
		invoicedomain.InvoiceStatusOverdue, now,
		invoicedomain.InvoiceStatusPending, now,
	)
	if result.Error != nil {
		return 0, result.Error
	}

	if result.RowsAffected > 0 {
		s.notifier.NotifyAdmin(ctx, events.Event{
			Type:       events.TypeInvoicesOverdue,
			Detail:     map[string]any{"count": result.RowsAffected},
			OccurredAt: now,
		})
		s.log.Info("invoices marked overdue", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoicesRequest) (invoicedomain.ListInvoicesResponse, error) {
	req.Pagination = req.Pagination.Normalize()

	query := s.db.WithContext(ctx).Model(&invoicedomain.Invoice{})
	if req.Status != nil {
		query = query.Where("status = ?", *req.Status)
	}
	if req.CustomerID != nil {
		customerID, err := snowflake.ParseString(strings.TrimSpace(*req.CustomerID))
		if err != nil {
			return invoicedomain.ListInvoicesResponse{}, invoicedomain.ErrInvalidInvoiceID
		}
		query = query.Where("customer_id = ?", customerID)
	}
	if req.Month != nil {
		query = query.Where("month = ?", strings.TrimSpace(*req.Month))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return invoicedomain.ListInvoicesResponse{}, err
	}

	var invoices []invoicedomain.Invoice
	err := query.
		Order("issue_date DESC, id DESC").
		Offset(req.Offset()).
		Limit(req.Limit).
		Find(&invoices).Error
	if err != nil {
		return invoicedomain.ListInvoicesResponse{}, err
	}

	return invoicedomain.ListInvoicesResponse{
		PageInfo: pagination.NewPageInfo(req.Pagination, total),
		Invoices: invoices,
	}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}

	var invoice invoicedomain.Invoice
	err = s.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", invoiceID).
		First(&invoice).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
		}
		return invoicedomain.Invoice{}, err
	}
	return invoice, nil
}

// Update applies administrative edits. Discount is the only mutable amount;
// changing it moves the total, the due amount, the derived status and the
// customer balance together.
func (s *Service) Update(ctx context.Context, id string, req invoicedomain.UpdateInvoiceRequest) (invoicedomain.Invoice, error) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}
	if req.Discount != nil && req.Discount.IsNegative() {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidDiscount
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row struct {
			ID          snowflake.ID    `gorm:"column:id"`
			CustomerID  snowflake.ID    `gorm:"column:customer_id"`
			Amount      decimal.Decimal `gorm:"column:amount"`
			UsageCharge decimal.Decimal `gorm:"column:usage_charge"`
			LateFee     decimal.Decimal `gorm:"column:late_fee"`
			VAT         decimal.Decimal `gorm:"column:vat"`
			TotalAmount decimal.Decimal `gorm:"column:total_amount"`
			PaidAmount  decimal.Decimal `gorm:"column:paid_amount"`
			DueDate     time.Time       `gorm:"column:due_date"`
		}
		if err := tx.Raw(
			`SELECT id, customer_id, amount, usage_charge, late_fee, vat,
			        total_amount, paid_amount, due_date
			 FROM invoices WHERE id = ?`+db.LockSuffix(tx),
			invoiceID,
		).Scan(&row).Error; err != nil {
			return err
		}
		if row.ID == 0 {
			return invoicedomain.ErrInvoiceNotFound
		}

		updates := map[string]any{"updated_at": now}
		if req.Notes != nil {
			updates["notes"] = strings.TrimSpace(*req.Notes)
		}
		if req.Discount != nil {
			discount := req.Discount.Round(2)
			newTotal := row.Amount.Add(row.UsageCharge).Add(row.LateFee).Add(row.VAT).Sub(discount)
			if newTotal.IsNegative() {
				return invoicedomain.ErrInvalidDiscount
			}
			newDue := newTotal.Sub(row.PaidAmount)
			delta := newTotal.Sub(row.TotalAmount)

			updates["discount"] = discount
			updates["total_amount"] = newTotal
			updates["due_amount"] = newDue
			updates["status"] = invoicedomain.DeriveStatus(newTotal, newDue, row.DueDate, now)

			if err := tx.Exec(
				`UPDATE customers SET balance = balance + ?, updated_at = ? WHERE id = ?`,
				delta, now, row.CustomerID,
			).Error; err != nil {
				return err
			}
		}

		return tx.Model(&invoicedomain.Invoice{}).
			Where("id = ?", invoiceID).
			Updates(updates).Error
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	return s.GetByID(ctx, id)
}
