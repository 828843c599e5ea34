package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	billing "github.com/smallbiznis/cloudbill/internal/billing/domain"
)

type invoiceItemResponse struct {
	UUID         string         `json:"uuid"`
	Name         string         `json:"name"`
	SourceType   string         `json:"source_type"`
	Unit         string         `json:"unit"`
	MeasuredUnit string         `json:"measured_unit"`
	UnitPrice    string         `json:"unit_price"`
	Quantity     string         `json:"quantity"`
	Price        string         `json:"price"`
	Tax          string         `json:"tax"`
	Total        string         `json:"total"`
	Start        time.Time      `json:"start"`
	End          time.Time      `json:"end"`
	ProjectName  string         `json:"project_name"`
	ProjectUUID  string         `json:"project_uuid,omitempty"`
	Details      map[string]any `json:"details"`
}

type invoiceResponse struct {
	UUID         string                `json:"uuid"`
	Number       int64                 `json:"number"`
	Year         int                   `json:"year"`
	Month        int                   `json:"month"`
	State        string                `json:"state"`
	TaxPercent   string                `json:"tax_percent"`
	Price        string                `json:"price"`
	Tax          string                `json:"tax"`
	Total        string                `json:"total"`
	PriceCurrent string                `json:"price_current"`
	TotalCurrent string                `json:"total_current"`
	InvoiceDate  *time.Time            `json:"invoice_date,omitempty"`
	DueDate      *time.Time            `json:"due_date,omitempty"`
	Items        []invoiceItemResponse `json:"items"`
}

func (s *Server) listInvoices(c *gin.Context) {
	filter := billing.InvoiceFilter{
		Year:     intQuery(c, "year"),
		Month:    intQuery(c, "month"),
		State:    billing.InvoiceState(c.Query("state")),
		SortBy:   c.Query("sort_by"),
		SortDesc: c.Query("sort_order") == "desc",
		Limit:    intQuery(c, "limit"),
	}
	if raw := c.Query("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "customer_id must be an integer")
			return
		}
		filter.CustomerID = snowflake.ID(id)
	}

	invoices, err := s.invoiceSvc.List(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}

	now := time.Now().UTC()
	out := make([]invoiceResponse, len(invoices))
	for i := range invoices {
		out[i] = s.invoiceResponse(&invoices[i], now)
	}
	c.JSON(http.StatusOK, gin.H{"invoices": out})
}

func (s *Server) getInvoice(c *gin.Context) {
	invoice, err := s.invoiceSvc.Get(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.invoiceResponse(invoice, time.Now().UTC()))
}

func (s *Server) invoiceResponse(invoice *billing.Invoice, now time.Time) invoiceResponse {
	resp := invoiceResponse{
		UUID:         invoice.UUID.String(),
		Number:       invoice.Number(),
		Year:         invoice.Year,
		Month:        invoice.Month,
		State:        string(invoice.State),
		TaxPercent:   invoice.TaxPercent.String(),
		Price:        invoice.Price().String(),
		Tax:          invoice.Tax().String(),
		Total:        invoice.Total().String(),
		PriceCurrent: invoice.PriceCurrent(now).String(),
		TotalCurrent: invoice.TotalCurrent(now).String(),
		InvoiceDate:  invoice.InvoiceDate,
		DueDate:      invoice.DueDate(s.billing.Get().PaymentIntervalDays),
	}

	for i := range invoice.Items {
		item := &invoice.Items[i]
		// Zero lines carry no information for the reader.
		if item.Price().IsZero() {
			continue
		}
		resp.Items = append(resp.Items, invoiceItemResponse{
			UUID:         item.UUID.String(),
			Name:         item.Name,
			SourceType:   string(item.SourceType),
			Unit:         string(item.Unit),
			MeasuredUnit: item.GetMeasuredUnit(),
			UnitPrice:    item.UnitPrice.String(),
			Quantity:     item.Quantity.String(),
			Price:        item.Price().String(),
			Tax:          item.Tax(invoice.TaxPercent).String(),
			Total:        item.Total(invoice.TaxPercent).String(),
			Start:        item.Start,
			End:          item.End,
			ProjectName:  item.GetProjectName(),
			ProjectUUID:  item.GetProjectUUID(),
			Details:      item.Details,
		})
	}
	return resp
}

func intQuery(c *gin.Context, name string) int {
	value, _ := strconv.Atoi(c.Query(name))
	return value
}
