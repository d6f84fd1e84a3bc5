package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/openisp/netbill/internal/catalog/domain"
	"github.com/openisp/netbill/internal/clock"
	"github.com/openisp/netbill/internal/config"
	customerdomain "github.com/openisp/netbill/internal/customer/domain"
	"github.com/openisp/netbill/internal/events"
	"github.com/openisp/netbill/internal/gateway"
	invoicedomain "github.com/openisp/netbill/internal/invoice/domain"
	"github.com/openisp/netbill/internal/notify"
	"github.com/openisp/netbill/internal/observability/metrics"
	paymentdomain "github.com/openisp/netbill/internal/payment/domain"
	paymentservice "github.com/openisp/netbill/internal/payment/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type noopNotifier struct{}

func (noopNotifier) NotifyCustomer(ctx context.Context, msg notify.CustomerMessage) {}
func (noopNotifier) NotifyAdmin(ctx context.Context, event events.Event)           {}

// stubGateway approves or declines everything, counting calls.
type stubGateway struct {
	approveCharge bool
	approveRefund bool
	charges       int
	refunds       int
}

func (g *stubGateway) Provider() string { return "stripe" }

func (g *stubGateway) Charge(ctx context.Context, req gateway.ChargeRequest) (gateway.Confirmation, error) {
	g.charges++
	if !g.approveCharge {
		return gateway.Confirmation{Approved: false, Message: "card_declined"}, nil
	}
	return gateway.Confirmation{Reference: fmt.Sprintf("ch_%d", g.charges), Approved: true}, nil
}

func (g *stubGateway) Refund(ctx context.Context, reference string, amount decimal.Decimal, currency string) (gateway.Confirmation, error) {
	g.refunds++
	if !g.approveRefund {
		return gateway.Confirmation{Approved: false, Message: "refund_rejected"}, nil
	}
	return gateway.Confirmation{Reference: fmt.Sprintf("re_%d", g.refunds), Approved: true}, nil
}

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	clk  *clock.FakeClock
	gw   *stubGateway
	svc  paymentdomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_pay_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&catalogdomain.Package{},
		&customerdomain.Customer{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&paymentdomain.Payment{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(4)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC))
	gw := &stubGateway{approveCharge: true, approveRefund: true}

	svc := paymentservice.NewService(paymentservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Billing:  config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		Gateways: gateway.NewRegistry(gw),
		Notifier: noopNotifier{},
		Metrics:  metrics.New(),
	})

	return &fixture{db: db, node: node, clk: clk, gw: gw, svc: svc}
}

func (f *fixture) seedCustomer(t *testing.T, balance string) customerdomain.Customer {
	t.Helper()

	cust := customerdomain.Customer{
		ID:        f.node.Generate(),
		Code:      "CUST-" + f.node.Generate().String(),
		Name:      "Brian Mwangi",
		Email:     "brian@example.com",
		Status:    customerdomain.CustomerStatusActive,
		PackageID: f.node.Generate(),
		Balance:   decimal.RequireFromString(balance),
	}
	if err := f.db.Create(&cust).Error; err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	return cust
}

func (f *fixture) seedInvoice(t *testing.T, customerID snowflake.ID, total string, dueDate time.Time) invoicedomain.Invoice {
	t.Helper()

	amount := decimal.RequireFromString(total)
	invoice := invoicedomain.Invoice{
		ID:            f.node.Generate(),
		InvoiceNumber: invoicedomain.NewInvoiceNumber(),
		CustomerID:    customerID,
		Month:         "2026-02",
		IssueDate:     dueDate.AddDate(0, 0, -14),
		DueDate:       dueDate,
		Amount:        amount,
		TotalAmount:   amount,
		DueAmount:     amount,
		Status:        invoicedomain.InvoiceStatusPending,
	}
	if err := f.db.Create(&invoice).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return invoice
}

func (f *fixture) reloadInvoice(t *testing.T, id snowflake.ID) invoicedomain.Invoice {
	t.Helper()

	var invoice invoicedomain.Invoice
	if err := f.db.Where("id = ?", id).First(&invoice).Error; err != nil {
		t.Fatalf("reload invoice: %v", err)
	}
	return invoice
}

func (f *fixture) balance(t *testing.T, customerID snowflake.ID) decimal.Decimal {
	t.Helper()

	var cust customerdomain.Customer
	if err := f.db.Where("id = ?", customerID).First(&cust).Error; err != nil {
		t.Fatalf("reload customer: %v", err)
	}
	return cust.Balance
}

func (f *fixture) paymentCount(t *testing.T) int64 {
	t.Helper()

	var count int64
	if err := f.db.Model(&paymentdomain.Payment{}).Count(&count).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	return count
}

func wantAmount(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()

	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("expected %s %s, got %s", name, want, got.String())
	}
}

func strptr(s string) *string { return &s }

func TestRecordPaymentSettlesInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cust := f.seedCustomer(t, "52.50")
	invoice := f.seedInvoice(t, cust.ID, "52.50", f.clk.Now().AddDate(0, 0, 10))

	payment, err := f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: cust.ID.String(),
		InvoiceID:  strptr(invoice.ID.String()),
		Amount:     decimal.RequireFromString("52.50"),
		Method:     paymentdomain.MethodCash,
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if !strings.HasPrefix(payment.TransactionID, "TXN-") {
		t.Fatalf("unexpected transaction id %s", payment.TransactionID)
	}

	reloaded := f.reloadInvoice(t, invoice.ID)
	if reloaded.Status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("expected PAID, got %s", reloaded.Status)
	}
	wantAmount(t, "paid", reloaded.PaidAmount, "52.50")
	wantAmount(t, "due", reloaded.DueAmount, "0")
	wantAmount(t, "balance", f.balance(t, cust.ID), "0")
}

func TestRecordPaymentPartial(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cust := f.seedCustomer(t, "52.50")
	invoice := f.seedInvoice(t, cust.ID, "52.50", f.clk.Now().AddDate(0, 0, 10))

	_, err := f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: cust.ID.String(),
		InvoiceID:  strptr(invoice.ID.String()),
		Amount:     decimal.RequireFromString("20"),
		Method:     paymentdomain.MethodBankTransfer,
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}

	reloaded := f.reloadInvoice(t, invoice.ID)
	if reloaded.Status != invoicedomain.InvoiceStatusPartialPaid {
		t.Fatalf("expected PARTIAL_PAID, got %s", reloaded.Status)
	}
	wantAmount(t, "due", reloaded.DueAmount, "32.50")
	wantAmount(t, "balance", f.balance(t, cust.ID), "32.50")
}

func TestRecordPaymentOnPaidInvoiceRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cust := f.seedCustomer(t, "52.50")
	invoice := f.seedInvoice(t, cust.ID, "52.50", f.clk.Now().AddDate(0, 0, 10))

	pay := func() error {
		_, err := f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
			CustomerID: cust.ID.String(),
			InvoiceID:  strptr(invoice.ID.String()),
			Amount:     decimal.RequireFromString("52.50"),
			Method:     paymentdomain.MethodCash,
		})
		return err
	}
	if err := pay(); err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if err := pay(); !errors.Is(err, paymentdomain.ErrInvoiceAlreadyPaid) {
		t.Fatalf("expected ErrInvoiceAlreadyPaid, got %v", err)
	}
	if got := f.paymentCount(t); got != 1 {
		t.Fatalf("expected 1 payment row, got %d", got)
	}
}

func TestRecordPaymentUnappliedMovesBalanceOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cust := f.seedCustomer(t, "52.50")
	invoice := f.seedInvoice(t, cust.ID, "52.50", f.clk.Now().AddDate(0, 0, 10))

	payment, err := f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: cust.ID.String(),
		Amount:     decimal.RequireFromString("30"),
		Method:     paymentdomain.MethodMobileMoney,
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if payment.InvoiceID != nil {
		t.Fatalf("expected unapplied payment, got invoice %v", payment.InvoiceID)
	}

	reloaded := f.reloadInvoice(t, invoice.ID)
	if reloaded.Status != invoicedomain.InvoiceStatusPending {
		t.Fatalf("expected invoice untouched, got %s", reloaded.Status)
	}
	wantAmount(t, "due", reloaded.DueAmount, "52.50")
	wantAmount(t, "balance", f.balance(t, cust.ID), "22.50")
}

func TestRecordPaymentValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cust := f.seedCustomer(t, "0")

	_, err := f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: cust.ID.String(),
		Amount:     decimal.Zero,
		Method:     paymentdomain.MethodCash,
	})
	if !errors.Is(err, paymentdomain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	_, err = f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: cust.ID.String(),
		Amount:     decimal.RequireFromString("10"),
		Method:     paymentdomain.PaymentMethod("CHEQUE"),
	})
	if !errors.Is(err, paymentdomain.ErrInvalidMethod) {
		t.Fatalf("expected ErrInvalidMethod, got %v", err)
	}

	_, err = f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: f.node.Generate().String(),
		Amount:     decimal.RequireFromString("10"),
		Method:     paymentdomain.MethodCash,
	})
	if !errors.Is(err, paymentdomain.ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestRefundRestoresInvoiceAndBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cust := f.seedCustomer(t, "52.50")
	invoice := f.seedInvoice(t, cust.ID, "52.50", f.clk.Now().AddDate(0, 0, 10))

	payment, err := f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: cust.ID.String(),
		InvoiceID:  strptr(invoice.ID.String()),
		Amount:     decimal.RequireFromString("52.50"),
		Method:     paymentdomain.MethodCash,
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}

	refund, err := f.svc.RefundPayment(ctx, payment.ID.String(), paymentdomain.RefundPaymentRequest{Reason: "double charge"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refund.TransactionID != "REFUND_"+payment.TransactionID {
		t.Fatalf("unexpected refund transaction id %s", refund.TransactionID)
	}
	wantAmount(t, "refund amount", refund.Amount, "-52.50")

	reloaded := f.reloadInvoice(t, invoice.ID)
	if reloaded.Status != invoicedomain.InvoiceStatusPending {
		t.Fatalf("expected PENDING after refund, got %s", reloaded.Status)
	}
	wantAmount(t, "due", reloaded.DueAmount, "52.50")
	wantAmount(t, "paid", reloaded.PaidAmount, "0")
	wantAmount(t, "balance", f.balance(t, cust.ID), "52.50")
}

func TestRefundKeepsPartialStatusWhenOtherPaymentsRemain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cust := f.seedCustomer(t, "52.50")
	invoice := f.seedInvoice(t, cust.ID, "52.50", f.clk.Now().AddDate(0, 0, 10))

	first, err := f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: cust.ID.String(),
		InvoiceID:  strptr(invoice.ID.String()),
		Amount:     decimal.RequireFromString("20"),
		Method:     paymentdomain.MethodCash,
	})
	if err != nil {
		t.Fatalf("first payment: %v", err)
	}
	_, err = f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: cust.ID.String(),
		InvoiceID:  strptr(invoice.ID.String()),
		Amount:     decimal.RequireFromString("32.50"),
		Method:     paymentdomain.MethodBankTransfer,
	})
	if err != nil {
		t.Fatalf("second payment: %v", err)
	}

	if _, err := f.svc.RefundPayment(ctx, first.ID.String(), paymentdomain.RefundPaymentRequest{}); err != nil {
		t.Fatalf("refund: %v", err)
	}

	reloaded := f.reloadInvoice(t, invoice.ID)
	if reloaded.Status != invoicedomain.InvoiceStatusPartialPaid {
		t.Fatalf("expected PARTIAL_PAID after partial refund, got %s", reloaded.Status)
	}
	wantAmount(t, "due", reloaded.DueAmount, "20")
	wantAmount(t, "paid", reloaded.PaidAmount, "32.50")
}

func TestRefundTwiceRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cust := f.seedCustomer(t, "52.50")
	invoice := f.seedInvoice(t, cust.ID, "52.50", f.clk.Now().AddDate(0, 0, 10))

	payment, err := f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: cust.ID.String(),
		InvoiceID:  strptr(invoice.ID.String()),
		Amount:     decimal.RequireFromString("52.50"),
		Method:     paymentdomain.MethodCash,
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}

	if _, err := f.svc.RefundPayment(ctx, payment.ID.String(), paymentdomain.RefundPaymentRequest{}); err != nil {
		t.Fatalf("first refund: %v", err)
	}
	if _, err := f.svc.RefundPayment(ctx, payment.ID.String(), paymentdomain.RefundPaymentRequest{}); !errors.Is(err, paymentdomain.ErrNotRefundable) {
		t.Fatalf("expected ErrNotRefundable, got %v", err)
	}
}

func TestRefundOfRefundRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cust := f.seedCustomer(t, "52.50")
	invoice := f.seedInvoice(t, cust.ID, "52.50", f.clk.Now().AddDate(0, 0, 10))

	payment, err := f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: cust.ID.String(),
		InvoiceID:  strptr(invoice.ID.String()),
		Amount:     decimal.RequireFromString("52.50"),
		Method:     paymentdomain.MethodCash,
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	refund, err := f.svc.RefundPayment(ctx, payment.ID.String(), paymentdomain.RefundPaymentRequest{})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}

	if _, err := f.svc.RefundPayment(ctx, refund.ID.String(), paymentdomain.RefundPaymentRequest{}); !errors.Is(err, paymentdomain.ErrNotRefundable) {
		t.Fatalf("expected ErrNotRefundable for refund row, got %v", err)
	}
}

func TestGatewayPaymentApproved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cust := f.seedCustomer(t, "52.50")
	invoice := f.seedInvoice(t, cust.ID, "52.50", f.clk.Now().AddDate(0, 0, 10))

	payment, err := f.svc.ProcessGatewayPayment(ctx, paymentdomain.GatewayPaymentRequest{
		InvoiceID: invoice.ID.String(),
		Amount:    decimal.RequireFromString("52.50"),
		Method:    paymentdomain.MethodStripe,
	})
	if err != nil {
		t.Fatalf("gateway payment: %v", err)
	}
	if payment.Reference == "" {
		t.Fatal("expected gateway reference on payment")
	}
	if f.gw.charges != 1 {
		t.Fatalf("expected 1 charge, got %d", f.gw.charges)
	}

	reloaded := f.reloadInvoice(t, invoice.ID)
	if reloaded.Status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("expected PAID, got %s", reloaded.Status)
	}
	wantAmount(t, "balance", f.balance(t, cust.ID), "0")
}

func TestGatewayPaymentDeclinedLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gw.approveCharge = false
	cust := f.seedCustomer(t, "52.50")
	invoice := f.seedInvoice(t, cust.ID, "52.50", f.clk.Now().AddDate(0, 0, 10))

	_, err := f.svc.ProcessGatewayPayment(ctx, paymentdomain.GatewayPaymentRequest{
		InvoiceID: invoice.ID.String(),
		Amount:    decimal.RequireFromString("52.50"),
		Method:    paymentdomain.MethodStripe,
	})
	if !errors.Is(err, paymentdomain.ErrGatewayDeclined) {
		t.Fatalf("expected ErrGatewayDeclined, got %v", err)
	}
	if got := f.paymentCount(t); got != 0 {
		t.Fatalf("expected no payment rows, got %d", got)
	}
	reloaded := f.reloadInvoice(t, invoice.ID)
	wantAmount(t, "due", reloaded.DueAmount, "52.50")
	wantAmount(t, "balance", f.balance(t, cust.ID), "52.50")
}

func TestGatewayPaymentOnPaidInvoiceNeverCharges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cust := f.seedCustomer(t, "52.50")
	invoice := f.seedInvoice(t, cust.ID, "52.50", f.clk.Now().AddDate(0, 0, 10))

	_, err := f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: cust.ID.String(),
		InvoiceID:  strptr(invoice.ID.String()),
		Amount:     decimal.RequireFromString("52.50"),
		Method:     paymentdomain.MethodCash,
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}

	_, err = f.svc.ProcessGatewayPayment(ctx, paymentdomain.GatewayPaymentRequest{
		InvoiceID: invoice.ID.String(),
		Amount:    decimal.RequireFromString("10"),
		Method:    paymentdomain.MethodStripe,
	})
	if !errors.Is(err, paymentdomain.ErrInvoiceAlreadyPaid) {
		t.Fatalf("expected ErrInvoiceAlreadyPaid, got %v", err)
	}
	if f.gw.charges != 0 {
		t.Fatalf("expected no processor calls, got %d", f.gw.charges)
	}
}

func TestGatewayRefundDeclinedLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cust := f.seedCustomer(t, "52.50")
	invoice := f.seedInvoice(t, cust.ID, "52.50", f.clk.Now().AddDate(0, 0, 10))

	payment, err := f.svc.ProcessGatewayPayment(ctx, paymentdomain.GatewayPaymentRequest{
		InvoiceID: invoice.ID.String(),
		Amount:    decimal.RequireFromString("52.50"),
		Method:    paymentdomain.MethodStripe,
	})
	if err != nil {
		t.Fatalf("gateway payment: %v", err)
	}

	f.gw.approveRefund = false
	_, err = f.svc.RefundPayment(ctx, payment.ID.String(), paymentdomain.RefundPaymentRequest{})
	if !errors.Is(err, paymentdomain.ErrGatewayDeclined) {
		t.Fatalf("expected ErrGatewayDeclined, got %v", err)
	}

	reloaded := f.reloadInvoice(t, invoice.ID)
	if reloaded.Status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("expected invoice still PAID, got %s", reloaded.Status)
	}
	wantAmount(t, "balance", f.balance(t, cust.ID), "0")
	if got := f.paymentCount(t); got != 1 {
		t.Fatalf("expected only the original payment row, got %d", got)
	}
}

func TestRecordPaymentRejectsInvoiceOfAnotherCustomer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.seedCustomer(t, "52.50")
	payer := f.seedCustomer(t, "0")
	invoice := f.seedInvoice(t, owner.ID, "52.50", f.clk.Now().AddDate(0, 0, 10))

	_, err := f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: payer.ID.String(),
		InvoiceID:  strptr(invoice.ID.String()),
		Amount:     decimal.RequireFromString("52.50"),
		Method:     paymentdomain.MethodCash,
	})
	if !errors.Is(err, paymentdomain.ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound, got %v", err)
	}

	reloaded := f.reloadInvoice(t, invoice.ID)
	if reloaded.Status != invoicedomain.InvoiceStatusPending {
		t.Fatalf("expected PENDING, got %s", reloaded.Status)
	}
	wantAmount(t, "due", reloaded.DueAmount, "52.50")
	wantAmount(t, "owner balance", f.balance(t, owner.ID), "52.50")
	wantAmount(t, "payer balance", f.balance(t, payer.ID), "0")
	if count := f.paymentCount(t); count != 0 {
		t.Fatalf("expected no payment rows, got %d", count)
	}
}

func TestRecordPaymentBackdated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cust := f.seedCustomer(t, "52.50")
	invoice := f.seedInvoice(t, cust.ID, "52.50", f.clk.Now().AddDate(0, 0, 10))

	paidAt := time.Date(2026, time.February, 27, 9, 30, 0, 0, time.UTC)
	payment, err := f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: cust.ID.String(),
		InvoiceID:  strptr(invoice.ID.String()),
		Amount:     decimal.RequireFromString("52.50"),
		Method:     paymentdomain.MethodBankTransfer,
		PaidAt:     &paidAt,
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if !payment.PaidAt.Equal(paidAt) {
		t.Fatalf("expected paid_at %s, got %s", paidAt, payment.PaidAt)
	}
	if !payment.CreatedAt.Equal(f.clk.Now()) {
		t.Fatalf("expected created_at %s, got %s", f.clk.Now(), payment.CreatedAt)
	}

	reloaded := f.reloadInvoice(t, invoice.ID)
	if reloaded.Status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("expected PAID, got %s", reloaded.Status)
	}
}

func TestRecordPaymentDefaultsPaidAtToNow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cust := f.seedCustomer(t, "52.50")

	payment, err := f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: cust.ID.String(),
		Amount:     decimal.RequireFromString("10"),
		Method:     paymentdomain.MethodCash,
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if !payment.PaidAt.Equal(f.clk.Now()) {
		t.Fatalf("expected paid_at %s, got %s", f.clk.Now(), payment.PaidAt)
	}
}

func TestRecordPaymentRejectsFuturePaidAt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cust := f.seedCustomer(t, "52.50")

	future := f.clk.Now().Add(time.Hour)
	_, err := f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: cust.ID.String(),
		Amount:     decimal.RequireFromString("10"),
		Method:     paymentdomain.MethodCash,
		PaidAt:     &future,
	})
	if !errors.Is(err, paymentdomain.ErrInvalidPaidAt) {
		t.Fatalf("expected ErrInvalidPaidAt, got %v", err)
	}
	if count := f.paymentCount(t); count != 0 {
		t.Fatalf("expected no payment rows, got %d", count)
	}
}
