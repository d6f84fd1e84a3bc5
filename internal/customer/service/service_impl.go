package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/openisp/netbill/internal/catalog/domain"
	"github.com/openisp/netbill/internal/clock"
	customerdomain "github.com/openisp/netbill/internal/customer/domain"
	"github.com/openisp/netbill/internal/events"
	invoicedomain "github.com/openisp/netbill/internal/invoice/domain"
	"github.com/openisp/netbill/internal/notify"
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
	Notifier notify.Notifier
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	notifier notify.Notifier
}

func NewService(p Params) customerdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("customer.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		notifier: p.Notifier,
	}
}

// Onboard creates the subscriber and, when the plan carries a setup fee,
// issues the fee as the customer's first invoice in the same transaction.
// The balance is never seeded directly; it only moves together with an
// invoice row that explains it.
func (s *Service) Onboard(ctx context.Context, req customerdomain.OnboardCustomerRequest) (*customerdomain.Customer, error) {
	packageID, err := snowflake.ParseString(strings.TrimSpace(req.PackageID))
	if err != nil {
		return nil, customerdomain.ErrInvalidPackage
	}

	var routerID *snowflake.ID
	if req.RouterID != nil && strings.TrimSpace(*req.RouterID) != "" {
		id, err := snowflake.ParseString(strings.TrimSpace(*req.RouterID))
		if err != nil {
			return nil, customerdomain.ErrInvalidID
		}
		routerID = &id
	}

	var pkg catalogdomain.Package
	err = s.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", packageID, true).
		First(&pkg).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, customerdomain.ErrPackageNotFound
		}
		return nil, err
	}

	now := s.clock.Now()

	customer := customerdomain.Customer{
		ID:        s.genID.Generate(),
		Code:      strings.TrimSpace(req.Code),
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Address:   strings.TrimSpace(req.Address),
		Status:    customerdomain.CustomerStatusPending,
		PackageID: packageID,
		RouterID:  routerID,
		Balance:   decimal.Zero,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&customer).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return customerdomain.ErrDuplicateCode
			}
			return err
		}

		if !pkg.SetupFee.IsPositive() {
			return nil
		}

		vat := pkg.SetupFee.Mul(pkg.TaxRate).Div(decimal.NewFromInt(100)).Round(2)
		total := pkg.SetupFee.Add(vat)

		// The month key carries a suffix so the monthly run for the same
		// period still fits under the (customer, month) uniqueness rule.
		setup := invoicedomain.Invoice{
			ID:            s.genID.Generate(),
			InvoiceNumber: invoicedomain.NewInvoiceNumber(),
			CustomerID:    customer.ID,
			Month:         invoicedomain.PeriodOf(now).String() + "-SETUP",
			IssueDate:     now,
			DueDate:       now.AddDate(0, 0, 14),
			Amount:        pkg.SetupFee,
			UsageCharge:   decimal.Zero,
			LateFee:       decimal.Zero,
			VAT:           vat,
			Discount:      decimal.Zero,
			TotalAmount:   total,
			PaidAmount:    decimal.Zero,
			DueAmount:     total,
			Status:        invoicedomain.InvoiceStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(&setup).Error; err != nil {
			return err
		}

		items := []invoicedomain.InvoiceItem{
			{
				ID:          s.genID.Generate(),
				InvoiceID:   setup.ID,
				Description: "Installation and setup fee",
				Quantity:    decimal.NewFromInt(1),
				UnitPrice:   pkg.SetupFee,
				Total:       pkg.SetupFee,
				CreatedAt:   now,
			},
		}
		if vat.IsPositive() {
			items = append(items, invoicedomain.InvoiceItem{
				ID:          s.genID.Generate(),
				InvoiceID:   setup.ID,
				Description: fmt.Sprintf("VAT (%s%%)", pkg.TaxRate.String()),
				Quantity:    decimal.NewFromInt(1),
				UnitPrice:   vat,
				Total:       vat,
				CreatedAt:   now,
			})
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}

		customer.Balance = total
		return tx.Exec(
			`UPDATE customers SET balance = balance + ?, updated_at = ? WHERE id = ?`,
			total, now, customer.ID,
		).Error
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyCustomer(ctx, notify.CustomerMessage{
		Email:   customer.Email,
		Phone:   customer.Phone,
		Subject: "Welcome to NetBill",
		HTMLBody: fmt.Sprintf(
			"<p>Hi %s,</p><p>Your account <b>%s</b> on plan <b>%s</b> is ready. You will receive a monthly invoice; your first bill may include the setup fee.</p>",
			customer.Name, customer.Code, pkg.Name,
		),
		SMSText: fmt.Sprintf("Welcome to NetBill, %s. Your account %s is ready.", customer.Name, customer.Code),
	})
	s.notifier.NotifyAdmin(ctx, events.Event{
		Type:       events.TypeCustomerOnboarded,
		CustomerID: customer.ID.String(),
		Detail: map[string]any{
			"code":    customer.Code,
			"package": pkg.Code,
		},
		OccurredAt: now,
	})

	s.log.Info("customer onboarded",
		zap.String("customer_id", customer.ID.String()),
		zap.String("code", customer.Code),
		zap.String("package", pkg.Code),
	)
	return &customer, nil
}

func (s *Service) List(ctx context.Context, req customerdomain.ListCustomersRequest) ([]customerdomain.Customer, *pagination.PageInfo, error) {
	req.Pagination = req.Pagination.Normalize()

	query := s.db.WithContext(ctx).Model(&customerdomain.Customer{})
	if req.Status != nil {
		query = query.Where("status = ?", *req.Status)
	}
	if req.PackageID != nil {
		packageID, err := snowflake.ParseString(strings.TrimSpace(*req.PackageID))
		if err != nil {
			return nil, nil, customerdomain.ErrInvalidPackage
		}
		query = query.Where("package_id = ?", packageID)
	}
	if req.Search != nil && strings.TrimSpace(*req.Search) != "" {
		like := "%" + strings.ToLower(strings.TrimSpace(*req.Search)) + "%"
		query = query.Where(
			"lower(name) LIKE ? OR lower(code) LIKE ? OR lower(email) LIKE ?",
			like, like, like,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	var customers []customerdomain.Customer
	err := query.
		Order("created_at DESC").
		Offset(req.Offset()).
		Limit(req.Limit).
		Find(&customers).Error
	if err != nil {
		return nil, nil, err
	}

	pageInfo := pagination.NewPageInfo(req.Pagination, total)
	return customers, &pageInfo, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*customerdomain.Customer, error) {
	customerID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, customerdomain.ErrInvalidID
	}

	var customer customerdomain.Customer
	err = s.db.WithContext(ctx).Where("id = ?", customerID).First(&customer).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, customerdomain.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Service) ChangeStatus(ctx context.Context, id string, req customerdomain.ChangeStatusRequest) (*customerdomain.Customer, error) {
	if !req.Status.Valid() {
		return nil, customerdomain.ErrInvalidStatus
	}

	customer, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if customer.Status == customerdomain.CustomerStatusDisconnected &&
		req.Status != customerdomain.CustomerStatusActive {
		// A disconnected line is only ever reconnected, never suspended or
		// re-set to pending.
		return nil, customerdomain.ErrInvalidTransition
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).
		Model(&customerdomain.Customer{}).
		Where("id = ?", customer.ID).
		Updates(map[string]any{"status": req.Status, "updated_at": now}).Error
	if err != nil {
		return nil, err
	}

	customer.Status = req.Status
	customer.UpdatedAt = now

	s.log.Info("customer status changed",
		zap.String("customer_id", customer.ID.String()),
		zap.String("status", string(req.Status)),
	)
	return customer, nil
}
