// Package calculator computes the charge breakdown for one customer and one
// billing period. It performs no I/O; identical inputs produce identical
// outputs.
package calculator

import (
	"time"

	catalogdomain "github.com/openisp/netbill/internal/catalog/domain"
	"github.com/openisp/netbill/internal/config"
	usagedomain "github.com/openisp/netbill/internal/usage/domain"
	"github.com/shopspring/decimal"
)

// Policy carries the configurable billing constants. Rates are injected, not
// hardcoded, so operators can tune them without a deploy.
type Policy struct {
	OverageRatePerGB decimal.Decimal
	DailyLateFeeRate decimal.Decimal
	LateFeeCapDays   int
}

// PolicyFrom converts the reloadable billing config into calculator inputs.
func PolicyFrom(cfg config.BillingConfig) Policy {
	return Policy{
		OverageRatePerGB: decimal.NewFromFloat(cfg.OverageRatePerGB),
		DailyLateFeeRate: decimal.NewFromFloat(cfg.DailyLateFeeRate),
		LateFeeCapDays:   cfg.LateFeeCapDays,
	}
}

// OverdueInvoice is the slice of an invoice the late-fee accrual needs.
type OverdueInvoice struct {
	DueAmount decimal.Decimal
	DueDate   time.Time
}

// ChargeBreakdown is the computed charge set for one invoice.
type ChargeBreakdown struct {
	Base        decimal.Decimal
	UsageGB     decimal.Decimal
	OverageGB   decimal.Decimal
	UsageCharge decimal.Decimal
	LateFee     decimal.Decimal
	Subtotal    decimal.Decimal
	VAT         decimal.Decimal
	Total       decimal.Decimal
}

// Compute produces the charge breakdown for a customer on pkg with the given
// period usage and currently overdue invoices.
//
//   - base is the package monthly price.
//   - usage beyond the package allowance is billed per GB; unlimited or
//     unparsable allowances never incur overage.
//   - each overdue invoice accrues dueAmount × dailyRate × min(daysOverdue, cap).
//   - VAT applies the package tax rate to base + overage + late fee.
func Compute(
	pkg catalogdomain.Package,
	usage []usagedomain.UsageRecord,
	overdue []OverdueInvoice,
	policy Policy,
	now time.Time,
) ChargeBreakdown {
	base := pkg.MonthlyPrice

	usageGB := usagedomain.TotalGB(usage)
	overageGB := decimal.Zero
	usageCharge := decimal.Zero
	if allowanceGB, capped := pkg.AllowanceGB(); capped && usageGB.GreaterThan(allowanceGB) {
		overageGB = usageGB.Sub(allowanceGB)
		usageCharge = overageGB.Mul(policy.OverageRatePerGB).Round(2)
	}

	lateFee := decimal.Zero
	for _, inv := range overdue {
		if !now.After(inv.DueDate) {
			continue
		}
		daysOverdue := int(now.Sub(inv.DueDate).Hours() / 24)
		if daysOverdue > policy.LateFeeCapDays {
			daysOverdue = policy.LateFeeCapDays
		}
		if daysOverdue < 1 {
			continue
		}
		accrued := inv.DueAmount.
			Mul(policy.DailyLateFeeRate).
			Mul(decimal.NewFromInt(int64(daysOverdue)))
		lateFee = lateFee.Add(accrued)
	}
	lateFee = lateFee.Round(2)

	subtotal := base.Add(usageCharge).Add(lateFee)
	vat := subtotal.Mul(pkg.TaxRate).Div(decimal.NewFromInt(100)).Round(2)
	total := subtotal.Add(vat)

	return ChargeBreakdown{
		Base:        base,
		UsageGB:     usageGB,
		OverageGB:   overageGB,
		UsageCharge: usageCharge,
		LateFee:     lateFee,
		Subtotal:    subtotal,
		VAT:         vat,
		Total:       total,
	}
}
