package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newDayItem(unitPrice string, start, end time.Time) InvoiceItem {
	item := InvoiceItem{
		Unit:      UnitPerDay,
		UnitPrice: decimal.RequireFromString(unitPrice),
		Start:     start,
		End:       end,
		Details:   datatypes.JSONMap{DetailBillingType: BillingTypeFixed},
	}
	item.RecomputeQuantity()
	return item
}

func TestItemPriceScenario(t *testing.T) {
	// Registered at t0, terminated 36 hours later: 1.5 days bill as 2.
	t0 := date(2017, 3, 10, 9)
	item := newDayItem("10", t0, MonthEnd(t0))
	item.Terminate(t0.Add(36 * time.Hour))

	require.Equal(t, "2", item.Quantity.String())
	require.Equal(t, "20", item.Price().String())
}

func TestTerminateSkipsUsageAndTotalLimit(t *testing.T) {
	t0 := date(2017, 3, 10, 9)

	usage := InvoiceItem{
		Unit:      UnitQuantity,
		UnitPrice: decimal.NewFromInt(3),
		Quantity:  decimal.NewFromInt(7),
		Start:     t0,
		End:       MonthEnd(t0),
		Details:   datatypes.JSONMap{DetailBillingType: BillingTypeUsage},
	}
	usage.Terminate(t0.Add(time.Hour))
	require.Equal(t, "7", usage.Quantity.String())

	totalLimit := InvoiceItem{
		Unit:      UnitPerDay,
		UnitPrice: decimal.NewFromInt(3),
		Quantity:  decimal.NewFromInt(100),
		Start:     t0,
		End:       MonthEnd(t0),
		Details: datatypes.JSONMap{
			DetailBillingType: BillingTypeLimit,
			DetailLimitPeriod: LimitPeriodTotal,
		},
	}
	totalLimit.Terminate(t0.Add(time.Hour))
	require.Equal(t, "100", totalLimit.Quantity.String())

	monthLimit := InvoiceItem{
		Unit:      UnitPerDay,
		UnitPrice: decimal.NewFromInt(3),
		Quantity:  decimal.NewFromInt(100),
		Start:     t0,
		End:       MonthEnd(t0),
		Details: datatypes.JSONMap{
			DetailBillingType: BillingTypeLimit,
			DetailLimitPeriod: LimitPeriodMonth,
		},
	}
	monthLimit.Terminate(t0.Add(36 * time.Hour))
	require.Equal(t, "2", monthLimit.Quantity.String())
}

func TestInvoicePriceRollUp(t *testing.T) {
	t0 := date(2017, 3, 1, 0)
	invoice := Invoice{
		TaxPercent: decimal.NewFromInt(20),
		Items: []InvoiceItem{
			newDayItem("10", t0, t0.Add(48*time.Hour)),
			newDayItem("2.5", t0, t0.Add(24*time.Hour)),
		},
	}

	sum := decimal.Zero
	for i := range invoice.Items {
		sum = sum.Add(invoice.Items[i].Price())
	}
	require.True(t, sum.Equal(invoice.Price()), "price %s sum %s", invoice.Price(), sum)
	require.Equal(t, "22.5", invoice.Price().String())
	require.Equal(t, "4.5", invoice.Tax().String())
	require.Equal(t, "27", invoice.Total().String())
}

func TestPriceCurrentClipsToEnd(t *testing.T) {
	t0 := date(2017, 3, 1, 0)
	item := newDayItem("10", t0, MonthEnd(t0))

	// Two days in, only the elapsed window counts.
	now := t0.Add(36 * time.Hour)
	require.Equal(t, "20", item.PriceCurrent(now).String())

	// Past the end, the estimate clips to the stored window.
	afterEnd := MonthEnd(t0).Add(48 * time.Hour)
	require.Equal(t, item.Price().String(), item.PriceCurrent(afterEnd).String())
}

func TestInvoiceNumberAndDueDate(t *testing.T) {
	invoice := Invoice{Sequence: 42}
	require.Equal(t, int64(100042), invoice.Number())

	require.Nil(t, invoice.DueDate(30))

	issued := date(2017, 3, 5, 12)
	invoice.InvoiceDate = &issued
	due := invoice.DueDate(30)
	require.NotNil(t, due)
	require.Equal(t, date(2017, 4, 4, 12), *due)
}

func TestGetMeasuredUnit(t *testing.T) {
	item := InvoiceItem{Unit: UnitPerDay, Quantity: decimal.NewFromInt(3)}
	require.Equal(t, "days", item.GetMeasuredUnit())

	item.Quantity = decimal.NewFromInt(1)
	require.Equal(t, "day", item.GetMeasuredUnit())

	item.MeasuredUnit = "GB"
	require.Equal(t, "GB", item.GetMeasuredUnit())

	month := InvoiceItem{Unit: UnitPerMonth, Quantity: decimal.NewFromInt(1)}
	require.Equal(t, "percents from a month", month.GetMeasuredUnit())
}

func TestProjectSnapshotFallbacks(t *testing.T) {
	item := InvoiceItem{}
	require.Equal(t, "N/A", item.GetProjectName())

	item.ProjectName = "research"
	item.ProjectUUID = "deadbeef"
	require.Equal(t, "research", item.GetProjectName())
	require.Equal(t, "deadbeef", item.GetProjectUUID())
}
