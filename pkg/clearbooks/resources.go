package clearbooks

import (
	"fmt"
	"strings"
)

// Resource names one of the tables ClearBooks lets us download.
type Resource string

const (
	Timesheets     Resource = "timesheets"
	PurchaseOrders Resource = "purchase_orders"
	Bills          Resource = "bills"
	Invoices       Resource = "invoices"
)

// Export report types understood by the ClearBooks CSV export endpoint.
const (
	reportPurchaseOrders = "POS"
	reportInvoices       = "SALES"
	reportBills          = "PURCHASES"
)

// BillColumns is the fixed column set of the bills export.
var BillColumns = []string{
	"clearbooks_id", "prefix", "number", "accounting_date", "reference",
	"po_reference", "transaction_id", "invoice_date", "invoice_due",
	"description", "company_name", "net", "vat", "gross", "status",
	"project_name", "outstanding", "mc_net", "mc_vat", "mc_gross",
	"currency_id", "formatted_invoice_number", "amount_credited",
	"currency_code",
}

// InvoiceColumns is the fixed column set of the invoices export.
var InvoiceColumns = []string{
	"invoice_num", "prefix", "accounting_date", "reference",
	"transaction_id", "invoice_date", "invoice_due", "description",
	"company_name", "net", "vat", "gross", "status", "project_name",
	"outstanding", "mc_net", "mc_vat", "mc_gross", "currency_id",
	"formatted_invoice_number", "amount_credited", "currency_code",
}

// PurchaseOrderColumns is the fixed column set of the purchase orders export.
var PurchaseOrderColumns = []string{
	"clearbooks_id", "prefix", "accounting_date", "reference", "invoice_date",
	"description", "company_name", "net", "vat", "gross", "status", "project_name",
}

// Timesheet columns. The raw CSV must carry the Timesheet* inputs; the rest are derived.
const (
	TimesheetDate        = "Date"
	TimesheetTime        = "Time"
	TimesheetEmployee    = "Employee"
	TimesheetDays        = "Days"
	TimesheetHours       = "Hours"
	TimesheetMinutes     = "Minutes"
	TimesheetDatetime    = "Datetime"
	TimesheetWorkingDays = "Working_Days"
	TimesheetQuarter     = "Quarter"
)

var timesheetRequired = []string{
	TimesheetDate, TimesheetTime, TimesheetEmployee,
	TimesheetDays, TimesheetHours, TimesheetMinutes,
}

var moneyColumns = []string{
	"net", "vat", "gross", "outstanding", "mc_net", "mc_vat", "mc_gross", "amount_credited",
}

// resourceDef describes how one resource is requested and what its table looks like.
type resourceDef struct {
	resource   Resource
	reportType string
	columns    []string
	dates      []string
	numbers    []string
	// exact requires the CSV header to carry exactly columns; otherwise columns is a required subset.
	exact bool
}

var resourceDefs = map[Resource]resourceDef{
	Bills: {
		resource:   Bills,
		reportType: reportBills,
		columns:    BillColumns,
		dates:      []string{"accounting_date", "invoice_date", "invoice_due"},
		numbers:    moneyColumns,
		exact:      true,
	},
	Invoices: {
		resource:   Invoices,
		reportType: reportInvoices,
		columns:    InvoiceColumns,
		dates:      []string{"accounting_date", "invoice_date", "invoice_due"},
		numbers:    moneyColumns,
		exact:      true,
	},
	PurchaseOrders: {
		resource:   PurchaseOrders,
		reportType: reportPurchaseOrders,
		columns:    PurchaseOrderColumns,
		dates:      []string{"accounting_date", "invoice_date"},
		numbers:    []string{"net", "vat", "gross"},
		exact:      true,
	},
	Timesheets: {
		resource: Timesheets,
		columns:  timesheetRequired,
		numbers:  []string{TimesheetDays, TimesheetHours, TimesheetMinutes},
	},
}

var resourceAliases = map[string]Resource{
	"timesheets":      Timesheets,
	"timesheet":       Timesheets,
	"purchase_orders": PurchaseOrders,
	"purchase-orders": PurchaseOrders,
	"purchaseorders":  PurchaseOrders,
	"pos":             PurchaseOrders,
	"bills":           Bills,
	"purchases":       Bills,
	"invoices":        Invoices,
	"sales":           Invoices,
}

// Resources lists every supported resource in a stable order.
func Resources() []Resource {
	return []Resource{Timesheets, PurchaseOrders, Bills, Invoices}
}

// ParseResource maps a name (or a ClearBooks report alias such as "POS") to a Resource.
func ParseResource(name string) (Resource, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if r, ok := resourceAliases[key]; ok {
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown resource %q (expected one of %v)", ErrInvalidQuery, name, Resources())
}

// Columns returns the fixed column set of r. For timesheets it is the derived table layout.
func (r Resource) Columns() []string {
	if r == Timesheets {
		return timesheetLayout(timesheetRequired)
	}
	def, ok := resourceDefs[r]
	if !ok {
		return nil
	}
	return append([]string(nil), def.columns...)
}

func (r Resource) String() string { return string(r) }

func lookupResource(r Resource) (resourceDef, error) {
	def, ok := resourceDefs[r]
	if !ok {
		return resourceDef{}, fmt.Errorf("%w: unknown resource %q", ErrInvalidQuery, string(r))
	}
	return def, nil
}
