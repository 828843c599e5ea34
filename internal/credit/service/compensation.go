// Package service applies prepaid credits to invoices as compensation items.
package service

import (
	"context"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billing "github.com/smallbiznis/cloudbill/internal/billing/domain"
	credit "github.com/smallbiznis/cloudbill/internal/credit/domain"
	"github.com/smallbiznis/cloudbill/pkg/repository"
)

// MonthlyCompensation offsets a closing invoice against the customer's
// prepaid credit. Items are compensated cheapest first; a project credit is
// drained before the organisation balance. Compensation appears on the
// invoice as negative quantity-unit lines tied to the credit.
type MonthlyCompensation struct {
	node *snowflake.Node
	log  *zap.Logger
}

func NewMonthlyCompensation(node *snowflake.Node, log *zap.Logger) *MonthlyCompensation {
	return &MonthlyCompensation{node: node, log: log.Named("credit.compensation")}
}

var _ billing.Compensator = (*MonthlyCompensation)(nil)

func (c *MonthlyCompensation) Compensate(ctx context.Context, tx *gorm.DB, invoice *billing.Invoice) error {
	custCredit, err := repository.ProvideStore[credit.CustomerCredit](tx).
		FindOne(ctx, &credit.CustomerCredit{CustomerID: invoice.CustomerID})
	if err != nil {
		return err
	}
	if custCredit == nil || !custCredit.Value.IsPositive() {
		return nil
	}

	items, projectIDs := eligibleItems(invoice)
	if len(items) == 0 {
		return nil
	}

	projectCredits, err := loadProjectCredits(ctx, tx, projectIDs)
	if err != nil {
		return err
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Price().LessThan(items[j].Price())
	})

	var compensations []*billing.InvoiceItem
	for _, item := range items {
		amount := c.compensateItem(item, invoice.TaxPercent, custCredit, projectCredits)
		if amount.IsPositive() {
			compensations = append(compensations, c.compensationItem(invoice, item, custCredit, amount))
		}
		if !custCredit.Value.IsPositive() {
			break
		}
	}

	total := decimal.Zero
	for i := range compensations {
		total = total.Add(compensations[i].UnitPrice.Neg())
	}

	// A minimal consumption floor burns credit even when usage was lower.
	if custCredit.MinimalConsumption.IsPositive() && total.LessThan(custCredit.MinimalConsumption) {
		tail := custCredit.MinimalConsumption.Sub(total)
		if custCredit.Value.LessThan(tail) {
			tail = custCredit.Value
		}
		custCredit.Value = custCredit.Value.Sub(tail)
		c.log.Info("minimal consumption applied",
			zap.Int64("customer_id", int64(invoice.CustomerID)),
			zap.String("tail", tail.String()))
	}

	if err := repository.ProvideStore[billing.InvoiceItem](tx).BatchCreate(ctx, compensations); err != nil {
		return err
	}
	for _, pc := range projectCredits {
		if err := tx.Model(&credit.ProjectCredit{}).Where("id = ?", pc.ID).Update("value", pc.Value).Error; err != nil {
			return err
		}
	}
	return tx.Model(&credit.CustomerCredit{}).Where("id = ?", custCredit.ID).Update("value", custCredit.Value).Error
}

// compensateItem burns credit for one item and returns the compensated
// amount. The item's project credit goes first; the organisation balance
// covers the remainder when the project allows it.
func (c *MonthlyCompensation) compensateItem(item *billing.InvoiceItem, taxPercent decimal.Decimal, custCredit *credit.CustomerCredit, projectCredits map[snowflake.ID]*credit.ProjectCredit) decimal.Decimal {
	cost := item.Total(taxPercent)
	if !cost.IsPositive() {
		return decimal.Zero
	}

	var projectCredit *credit.ProjectCredit
	if item.ProjectID != nil {
		projectCredit = projectCredits[*item.ProjectID]
	}
	if projectCredit == nil {
		if cost.GreaterThanOrEqual(custCredit.Value) {
			amount := custCredit.Value
			custCredit.Value = decimal.Zero
			return amount
		}
		custCredit.Value = custCredit.Value.Sub(cost)
		return cost
	}

	if cost.GreaterThanOrEqual(projectCredit.Value) {
		amount := projectCredit.Value
		cost = cost.Sub(projectCredit.Value)
		projectCredit.Value = decimal.Zero
		custCredit.Value = custCredit.Value.Sub(amount)

		if projectCredit.UseOrganisationCredit && cost.IsPositive() {
			if cost.GreaterThanOrEqual(custCredit.Value) {
				amount = amount.Add(custCredit.Value)
				custCredit.Value = decimal.Zero
			} else {
				amount = amount.Add(cost)
				custCredit.Value = custCredit.Value.Sub(cost)
			}
		}
		return amount
	}

	projectCredit.Value = projectCredit.Value.Sub(cost)
	custCredit.Value = custCredit.Value.Sub(cost)
	return cost
}

func (c *MonthlyCompensation) compensationItem(invoice *billing.Invoice, item *billing.InvoiceItem, custCredit *credit.CustomerCredit, amount decimal.Decimal) *billing.InvoiceItem {
	creditID := custCredit.ID
	comp := billing.InvoiceItem{
		ID:          c.node.Generate(),
		UUID:        uuid.New(),
		InvoiceID:   invoice.ID,
		SourceType:  item.SourceType,
		SourceID:    item.SourceID,
		Name:        "Credit compensation. " + item.Name,
		Unit:        billing.UnitQuantity,
		UnitPrice:   amount.Neg(),
		Quantity:    decimal.NewFromInt(1),
		Start:       item.Start,
		End:         item.End,
		Details:     map[string]any{"credit_uuid": custCredit.UUID.String()},
		ProjectName: item.ProjectName,
		ProjectUUID: item.ProjectUUID,
		CreditID:    &creditID,
	}
	if item.ProjectID != nil {
		id := *item.ProjectID
		comp.ProjectID = &id
	}
	return &comp
}

// eligibleItems filters out compensation lines themselves and collects the
// project IDs the items charge against.
func eligibleItems(invoice *billing.Invoice) ([]*billing.InvoiceItem, []snowflake.ID) {
	var items []*billing.InvoiceItem
	seen := map[snowflake.ID]struct{}{}
	var projectIDs []snowflake.ID

	for i := range invoice.Items {
		item := &invoice.Items[i]
		if item.CreditID != nil {
			continue
		}
		items = append(items, item)
		if item.ProjectID != nil {
			if _, ok := seen[*item.ProjectID]; !ok {
				seen[*item.ProjectID] = struct{}{}
				projectIDs = append(projectIDs, *item.ProjectID)
			}
		}
	}
	return items, projectIDs
}

func loadProjectCredits(ctx context.Context, tx *gorm.DB, projectIDs []snowflake.ID) (map[snowflake.ID]*credit.ProjectCredit, error) {
	out := make(map[snowflake.ID]*credit.ProjectCredit)
	if len(projectIDs) == 0 {
		return out, nil
	}

	store := repository.ProvideStore[credit.ProjectCredit](tx)
	for _, projectID := range projectIDs {
		pc, err := store.FindOne(ctx, &credit.ProjectCredit{ProjectID: projectID})
		if err != nil {
			return nil, err
		}
		if pc != nil {
			out[projectID] = pc
		}
	}
	return out, nil
}
