package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// InvoiceItem is one billed line.
type InvoiceItem struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	Total       float64 `json:"total"`
}

// InvoiceRequest is the JSON body of POST /convert/invoice.
type InvoiceRequest struct {
	InvoiceNumber  string        `json:"invoice_number"`
	Date           string        `json:"date"`
	DueDate        string        `json:"due_date"`
	CompanyName    string        `json:"company_name"`
	CompanyAddress string        `json:"company_address"`
	ClientName     string        `json:"client_name"`
	ClientAddress  string        `json:"client_address"`
	Items          []InvoiceItem `json:"items"`
	Subtotal       float64       `json:"subtotal"`
	Tax            float64       `json:"tax"`
	Total          float64       `json:"total"`
	Notes          string        `json:"notes,omitempty"`
}

// Validate checks the fields the invoice layout cannot do without.
func (r InvoiceRequest) Validate() error {
	required := []struct {
		field, value string
	}{
		{"invoice_number", r.InvoiceNumber},
		{"date", r.Date},
		{"due_date", r.DueDate},
		{"company_name", r.CompanyName},
		{"client_name", r.ClientName},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.field, Reason: "field required"}
		}
	}
	for _, it := range r.Items {
		if it.Quantity < 0 {
			return &ValidationError{Field: "items.quantity", Reason: "must not be negative"}
		}
	}
	return nil
}

var (
	invoiceKeys = []string{
		"invoice_number", "date", "due_date",
		"company_name", "company_address", "client_name", "client_address",
		"items", "subtotal", "tax", "total",
	}
	itemKeys = []string{"description", "quantity", "price", "total"}
)

// DecodeInvoice parses and validates an invoice body. Every key except notes
// must be present and non-null; an empty items list is allowed.
func DecodeInvoice(data []byte) (InvoiceRequest, error) {
	var inv InvoiceRequest
	if err := json.Unmarshal(data, &inv); err != nil {
		return inv, &ValidationError{Field: "body", Reason: "invalid invoice JSON: " + err.Error()}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return inv, &ValidationError{Field: "body", Reason: "invalid invoice JSON: " + err.Error()}
	}
	if key := firstMissing(raw, invoiceKeys); key != "" {
		return inv, &ValidationError{Field: key, Reason: "field required"}
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw["items"], &items); err != nil {
		return inv, &ValidationError{Field: "items", Reason: "must be a list of objects"}
	}
	for i, it := range items {
		if key := firstMissing(it, itemKeys); key != "" {
			return inv, &ValidationError{Field: fmt.Sprintf("items[%d].%s", i, key), Reason: "field required"}
		}
	}
	return inv, inv.Validate()
}

func firstMissing(obj map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || strings.TrimSpace(string(v)) == "null" {
			return k
		}
	}
	return ""
}
