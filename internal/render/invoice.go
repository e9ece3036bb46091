package render

import "pdfgateway/internal/domain"

// Invoice lays out an invoice with items, totals and optional notes.
func Invoice(inv domain.InvoiceRequest) ([]byte, error) {
	return execute("invoice.html", inv)
}
