package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openisp/netbill/internal/clock"
	"github.com/openisp/netbill/internal/config"
	"github.com/openisp/netbill/internal/events"
	"github.com/openisp/netbill/internal/gateway"
	invoicedomain "github.com/openisp/netbill/internal/invoice/domain"
	"github.com/openisp/netbill/internal/notify"
	"github.com/openisp/netbill/internal/observability/metrics"
	paymentdomain "github.com/openisp/netbill/internal/payment/domain"
	"github.com/openisp/netbill/pkg/db"
	"github.com/openisp/netbill/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Billing  *config.BillingConfigHolder
	Gateways *gateway.Registry
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	billing  *config.BillingConfigHolder
	gateways *gateway.Registry
	notifier notify.Notifier
	metrics  *metrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		billing:  p.Billing,
		gateways: p.Gateways,
		notifier: p.Notifier,
		metrics:  p.Metrics,
	}
}

// invoiceRow is the slice of an invoice the reconciler reads under lock.
type invoiceRow struct {
	ID            snowflake.ID    `gorm:"column:id"`
	InvoiceNumber string          `gorm:"column:invoice_number"`
	CustomerID    snowflake.ID    `gorm:"column:customer_id"`
	TotalAmount   decimal.Decimal `gorm:"column:total_amount"`
	PaidAmount    decimal.Decimal `gorm:"column:paid_amount"`
	Status        string          `gorm:"column:status"`
	DueDate       time.Time       `gorm:"column:due_date"`
}

type customerContact struct {
	ID    snowflake.ID `gorm:"column:id"`
	Name  string       `gorm:"column:name"`
	Email string       `gorm:"column:email"`
	Phone string       `gorm:"column:phone"`
}

func (s *Service) RecordPayment(ctx context.Context, req paymentdomain.RecordPaymentRequest) (paymentdomain.Payment, error) {
	if !req.Amount.IsPositive() {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidAmount
	}
	if !req.Method.Valid() {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidMethod
	}
	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil {
		return paymentdomain.Payment{}, paymentdomain.ErrCustomerNotFound
	}

	var invoiceID *snowflake.ID
	if req.InvoiceID != nil && strings.TrimSpace(*req.InvoiceID) != "" {
		id, err := snowflake.ParseString(strings.TrimSpace(*req.InvoiceID))
		if err != nil {
			return paymentdomain.Payment{}, paymentdomain.ErrInvoiceNotFound
		}
		invoiceID = &id
	}

	now := s.clock.Now()
	paidAt := now
	if req.PaidAt != nil {
		if req.PaidAt.After(now) {
			return paymentdomain.Payment{}, paymentdomain.ErrInvalidPaidAt
		}
		paidAt = req.PaidAt.UTC()
	}
	payment := paymentdomain.Payment{
		ID:            s.genID.Generate(),
		TransactionID: paymentdomain.NewTransactionID(),
		InvoiceID:     invoiceID,
		CustomerID:    customerID,
		Amount:        req.Amount.Round(2),
		Method:        req.Method,
		Reference:     strings.TrimSpace(req.Reference),
		Notes:         strings.TrimSpace(req.Notes),
		Status:        paymentdomain.PaymentStatusCompleted,
		PaidAt:        paidAt,
		CreatedAt:     now,
	}

	if err := s.apply(ctx, &payment); err != nil {
		return paymentdomain.Payment{}, err
	}

	s.metrics.PaymentsRecorded.WithLabelValues(string(payment.Method)).Inc()
	s.afterPayment(ctx, payment)
	return payment, nil
}

func (s *Service) ProcessGatewayPayment(ctx context.Context, req paymentdomain.GatewayPaymentRequest) (paymentdomain.Payment, error) {
	if !req.Amount.IsPositive() {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidAmount
	}
	provider := req.Method.GatewayProvider()
	if provider == "" {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidMethod
	}
	gw, err := s.gateways.ForProvider(provider)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil {
		return paymentdomain.Payment{}, paymentdomain.ErrInvoiceNotFound
	}

	// Validate the target before touching the processor so a declined
	// invoice never produces a charge that needs reversing.
	var target invoiceRow
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, invoice_number, customer_id, total_amount, paid_amount, status, due_date
		 FROM invoices WHERE id = ?`,
		invoiceID,
	).Scan(&target).Error; err != nil {
		return paymentdomain.Payment{}, err
	}
	if target.ID == 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvoiceNotFound
	}
	if target.Status == string(invoicedomain.InvoiceStatusPaid) {
		return paymentdomain.Payment{}, paymentdomain.ErrInvoiceAlreadyPaid
	}

	policy := s.billing.Get()
	confirmation, err := gw.Charge(ctx, gateway.ChargeRequest{
		Amount:      req.Amount.Round(2),
		Currency:    policy.Currency,
		InvoiceID:   invoiceID.String(),
		CustomerID:  target.CustomerID.String(),
		Description: "Invoice " + target.InvoiceNumber,
	})
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if !confirmation.Approved {
		s.log.Warn("gateway charge declined",
			zap.String("invoice_number", target.InvoiceNumber),
			zap.String("provider", provider),
			zap.String("message", confirmation.Message),
		)
		return paymentdomain.Payment{}, paymentdomain.ErrGatewayDeclined
	}

	now := s.clock.Now()
	payment := paymentdomain.Payment{
		ID:            s.genID.Generate(),
		TransactionID: paymentdomain.NewTransactionID(),
		InvoiceID:     &invoiceID,
		CustomerID:    target.CustomerID,
		Amount:        req.Amount.Round(2),
		Method:        req.Method,
		Reference:     confirmation.Reference,
		Status:        paymentdomain.PaymentStatusCompleted,
		PaidAt:        now,
		CreatedAt:     now,
	}

	if err := s.apply(ctx, &payment); err != nil {
		// The processor already captured the money; this needs a manual
		// reconciliation rather than a silent retry.
		s.log.Error("charge captured but local apply failed",
			zap.String("invoice_number", target.InvoiceNumber),
			zap.String("gateway_reference", confirmation.Reference),
			zap.Error(err),
		)
		return paymentdomain.Payment{}, err
	}

	s.metrics.PaymentsRecorded.WithLabelValues(string(payment.Method)).Inc()
	s.afterPayment(ctx, payment)
	return payment, nil
}

// apply persists the payment row and moves the invoice and customer balance
// in one transaction. PaidAt may be back-dated, so row timestamps use the
// clock instead.
func (s *Service) apply(ctx context.Context, payment *paymentdomain.Payment) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customer struct {
			ID snowflake.ID `gorm:"column:id"`
		}
		if err := tx.Raw(
			`SELECT id FROM customers WHERE id = ?`+db.LockSuffix(tx),
			payment.CustomerID,
		).Scan(&customer).Error; err != nil {
			return err
		}
		if customer.ID == 0 {
			return paymentdomain.ErrCustomerNotFound
		}

		if payment.InvoiceID != nil {
			var row invoiceRow
			if err := tx.Raw(
				`SELECT id, invoice_number, customer_id, total_amount, paid_amount, status, due_date
				 FROM invoices WHERE id = ?`+db.LockSuffix(tx),
				*payment.InvoiceID,
			).Scan(&row).Error; err != nil {
				return err
			}
			if row.ID == 0 {
				return paymentdomain.ErrInvoiceNotFound
			}
			// A payment only settles invoices of the customer it names.
			if row.CustomerID != payment.CustomerID {
				return paymentdomain.ErrInvoiceNotFound
			}
			if row.Status == string(invoicedomain.InvoiceStatusPaid) {
				return paymentdomain.ErrInvoiceAlreadyPaid
			}

			newPaid := row.PaidAmount.Add(payment.Amount)
			newDue := row.TotalAmount.Sub(newPaid)
			status := invoicedomain.DeriveStatus(row.TotalAmount, newDue, row.DueDate, now)
			if err := tx.Exec(
				`UPDATE invoices
				 SET paid_amount = ?, due_amount = ?, status = ?, updated_at = ?
				 WHERE id = ?`,
				newPaid, newDue, status, now, row.ID,
			).Error; err != nil {
				return err
			}
		}

		if err := tx.Create(payment).Error; err != nil {
			return err
		}

		return tx.Exec(
			`UPDATE customers SET balance = balance - ?, updated_at = ? WHERE id = ?`,
			payment.Amount, now, payment.CustomerID,
		).Error
	})
}

func (s *Service) RefundPayment(ctx context.Context, paymentID string, req paymentdomain.RefundPaymentRequest) (paymentdomain.Payment, error) {
	original, err := s.GetByID(ctx, paymentID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if original.IsRefund() {
		return paymentdomain.Payment{}, paymentdomain.ErrNotRefundable
	}

	refundTxnID := "REFUND_" + original.TransactionID
	var alreadyRefunded int64
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payments WHERE transaction_id = ?`,
		refundTxnID,
	).Scan(&alreadyRefunded).Error; err != nil {
		return paymentdomain.Payment{}, err
	}
	if alreadyRefunded > 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrNotRefundable
	}

	// For online payments the processor must accept the refund before any
	// local state changes; a declined refund leaves everything untouched.
	if provider := original.Method.GatewayProvider(); provider != "" {
		gw, err := s.gateways.ForProvider(provider)
		if err != nil {
			return paymentdomain.Payment{}, err
		}
		policy := s.billing.Get()
		confirmation, err := gw.Refund(ctx, original.Reference, original.Amount, policy.Currency)
		if err != nil {
			return paymentdomain.Payment{}, err
		}
		if !confirmation.Approved {
			s.log.Warn("gateway refund declined",
				zap.String("transaction_id", original.TransactionID),
				zap.String("provider", provider),
				zap.String("message", confirmation.Message),
			)
			return paymentdomain.Payment{}, paymentdomain.ErrGatewayDeclined
		}
	}

	now := s.clock.Now()
	refund := paymentdomain.Payment{
		ID:            s.genID.Generate(),
		TransactionID: refundTxnID,
		InvoiceID:     original.InvoiceID,
		CustomerID:    original.CustomerID,
		Amount:        original.Amount.Neg(),
		Method:        original.Method,
		Reference:     "Refund of " + original.TransactionID,
		Notes:         strings.TrimSpace(req.Reason),
		Status:        paymentdomain.PaymentStatusCompleted,
		PaidAt:        now,
		CreatedAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if refund.InvoiceID != nil {
			var row invoiceRow
			if err := tx.Raw(
				`SELECT id, invoice_number, customer_id, total_amount, paid_amount, status, due_date
				 FROM invoices WHERE id = ?`+db.LockSuffix(tx),
				*refund.InvoiceID,
			).Scan(&row).Error; err != nil {
				return err
			}
			if row.ID == 0 {
				return paymentdomain.ErrInvoiceNotFound
			}

			newPaid := row.PaidAmount.Sub(original.Amount)
			newDue := row.TotalAmount.Sub(newPaid)
			// Recompute instead of resetting to PENDING, so an invoice
			// still covered by other payments keeps the right state.
			status := invoicedomain.DeriveStatus(row.TotalAmount, newDue, row.DueDate, now)
			if err := tx.Exec(
				`UPDATE invoices
				 SET paid_amount = ?, due_amount = ?, status = ?, updated_at = ?
				 WHERE id = ?`,
				newPaid, newDue, status, now, row.ID,
			).Error; err != nil {
				return err
			}
		}

		if err := tx.Create(&refund).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return paymentdomain.ErrNotRefundable
			}
			return err
		}

		return tx.Exec(
			`UPDATE customers SET balance = balance + ?, updated_at = ? WHERE id = ?`,
			original.Amount, now, original.CustomerID,
		).Error
	})
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	s.metrics.PaymentsRefunded.Inc()
	s.afterPayment(ctx, refund)
	return refund, nil
}

// afterPayment runs best-effort receipts and admin events once the money
// movement is committed.
func (s *Service) afterPayment(ctx context.Context, payment paymentdomain.Payment) {
	policy := s.billing.Get()

	var contact customerContact
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, name, email, phone FROM customers WHERE id = ?`,
		payment.CustomerID,
	).Scan(&contact).Error; err != nil {
		s.log.Warn("receipt lookup failed",
			zap.String("transaction_id", payment.TransactionID),
			zap.Error(err),
		)
		return
	}

	eventType := events.TypePaymentRecorded
	subject := "Payment received " + payment.TransactionID
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>We received your payment of <b>%s %s</b> (transaction %s). Thank you.</p>",
		contact.Name, policy.Currency, payment.Amount.StringFixed(2), payment.TransactionID,
	)
	sms := fmt.Sprintf(
		"NetBill: payment of %s %s received, ref %s.",
		policy.Currency, payment.Amount.StringFixed(2), payment.TransactionID,
	)
	if payment.IsRefund() {
		eventType = events.TypePaymentRefunded
		subject = "Refund issued " + payment.TransactionID
		body = fmt.Sprintf(
			"<p>Hi %s,</p><p>A refund of <b>%s %s</b> was issued to you (transaction %s).</p>",
			contact.Name, policy.Currency, payment.Amount.Neg().StringFixed(2), payment.TransactionID,
		)
		sms = fmt.Sprintf(
			"NetBill: refund of %s %s issued, ref %s.",
			policy.Currency, payment.Amount.Neg().StringFixed(2), payment.TransactionID,
		)
	}

	s.notifier.NotifyCustomer(ctx, notify.CustomerMessage{
		Email:    contact.Email,
		Phone:    contact.Phone,
		Subject:  subject,
		HTMLBody: body,
		SMSText:  sms,
	})
	s.notifier.NotifyAdmin(ctx, events.Event{
		Type:       eventType,
		CustomerID: payment.CustomerID.String(),
		Detail: map[string]any{
			"transaction_id": payment.TransactionID,
			"amount":         payment.Amount.StringFixed(2),
			"method":         string(payment.Method),
		},
		OccurredAt: s.clock.Now(),
	})
}

func (s *Service) List(ctx context.Context, req paymentdomain.ListPaymentsRequest) (paymentdomain.ListPaymentsResponse, error) {
	req.Pagination = req.Pagination.Normalize()

	query := s.db.WithContext(ctx).Model(&paymentdomain.Payment{})
	if req.CustomerID != nil {
		customerID, err := snowflake.ParseString(strings.TrimSpace(*req.CustomerID))
		if err != nil {
			return paymentdomain.ListPaymentsResponse{}, paymentdomain.ErrCustomerNotFound
		}
		query = query.Where("customer_id = ?", customerID)
	}
	if req.InvoiceID != nil {
		invoiceID, err := snowflake.ParseString(strings.TrimSpace(*req.InvoiceID))
		if err != nil {
			return paymentdomain.ListPaymentsResponse{}, paymentdomain.ErrInvoiceNotFound
		}
		query = query.Where("invoice_id = ?", invoiceID)
	}
	if req.Method != nil && strings.TrimSpace(*req.Method) != "" {
		query = query.Where("method = ?", strings.ToUpper(strings.TrimSpace(*req.Method)))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return paymentdomain.ListPaymentsResponse{}, err
	}

	var payments []paymentdomain.Payment
	err := query.
		Order("paid_at DESC, id DESC").
		Offset(req.Offset()).
		Limit(req.Limit).
		Find(&payments).Error
	if err != nil {
		return paymentdomain.ListPaymentsResponse{}, err
	}

	return paymentdomain.ListPaymentsResponse{
		PageInfo: pagination.NewPageInfo(req.Pagination, total),
		Payments: payments,
	}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (paymentdomain.Payment, error) {
	paymentID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidPaymentID
	}

	var payment paymentdomain.Payment
	err = s.db.WithContext(ctx).Where("id = ?", paymentID).First(&payment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return paymentdomain.Payment{}, paymentdomain.ErrPaymentNotFound
		}
		return paymentdomain.Payment{}, err
	}
	return payment, nil
}
