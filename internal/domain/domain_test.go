package domain

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrors_AreDistinctAndUsableWithErrorsIs(t *testing.T) {
	all := []error{ErrEngineRejected, ErrEmptyPDF, ErrUnsupported, ErrInvalidAPIKey, ErrTokenStoreNotReady}
	for i, a := range all {
		assert.NotEmpty(t, a.Error())
		for j, b := range all {
			if i != j {
				assert.NotEqual(t, a, b)
			}
		}
		assert.True(t, errors.Is(errors.Join(errors.New("context"), a), a))
	}
}

func TestEngineError_UnwrapsAndTrims(t *testing.T) {
	err := &EngineError{Op: "merge", StatusCode: 400, Body: strings.Repeat("x", 1000)}
	assert.ErrorIs(t, err, ErrEngineRejected)
	assert.Less(t, len(err.Error()), 300)

	empty := &EngineError{Op: "convert html", StatusCode: 503}
	assert.Equal(t, "convert html: engine returned 503", empty.Error())

	var ee *EngineError
	assert.True(t, errors.As(error(err), &ee))
	assert.Equal(t, 400, ee.StatusCode)
}

func TestEngineError_TrimsOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("a", 255) + strings.Repeat("é", 10)
	msg := (&EngineError{Op: "convert html", StatusCode: 500, Body: body}).Error()
	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, strings.Repeat("a", 255)))
}

func TestPageOptionsFields(t *testing.T) {
	assert.True(t, PageOptions{}.IsZero())
	assert.Empty(t, PageOptions{}.Fields())

	f := PageOptions{PaperWidth: 8.27, PaperHeight: 11.7, MarginTop: 0.5, MarginLeft: 0.5, PrintBackground: true}.Fields()
	assert.Equal(t, map[string]string{
		"paperWidth":      "8.27",
		"paperHeight":     "11.7",
		"marginTop":       "0.5",
		"marginBottom":    "0",
		"marginLeft":      "0.5",
		"marginRight":     "0",
		"printBackground": "true",
	}, f)
}

func TestPageOptionsFields_ZeroMarginsAreExplicit(t *testing.T) {
	f := PageOptions{PaperWidth: 8.27, PaperHeight: 11.7}.Fields()
	for _, k := range []string{"marginTop", "marginBottom", "marginLeft", "marginRight"} {
		assert.Equal(t, "0", f[k], k)
	}
	assert.NotContains(t, f, "printBackground")
}

func validInvoice() InvoiceRequest {
	return InvoiceRequest{
		InvoiceNumber: "INV-1",
		Date:          "2026-10-01",
		DueDate:       "2026-10-31",
		CompanyName:   "Acme",
		ClientName:    "Globex",
		Items:         []InvoiceItem{{Description: "Widget", Quantity: 2, Price: 5, Total: 10}},
	}
}

func TestInvoiceValidate(t *testing.T) {
	assert.NoError(t, validInvoice().Validate())

	tests := []struct {
		name  string
		mut   func(*InvoiceRequest)
		field string
	}{
		{"missing number", func(r *InvoiceRequest) { r.InvoiceNumber = " " }, "invoice_number"},
		{"missing due date", func(r *InvoiceRequest) { r.DueDate = "" }, "due_date"},
		{"missing client", func(r *InvoiceRequest) { r.ClientName = "" }, "client_name"},
		{"negative quantity", func(r *InvoiceRequest) { r.Items[0].Quantity = -1 }, "items.quantity"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := validInvoice()
			tc.mut(&r)
			err := r.Validate()
			var ve *ValidationError
			if assert.ErrorAs(t, err, &ve) {
				assert.Equal(t, tc.field, ve.Field)
			}
		})
	}
}

func TestInvoiceValidate_EmptyItemsAllowed(t *testing.T) {
	r := validInvoice()
	r.Items = []InvoiceItem{}
	assert.NoError(t, r.Validate())
}

const fullInvoiceJSON = `{
	"invoice_number": "INV-1", "date": "2026-10-01", "due_date": "2026-10-31",
	"company_name": "Acme", "company_address": "1 Main St", "client_name": "Globex",
	"client_address": "2 Side St",
	"items": [{"description": "Widget", "quantity": 2, "price": 5, "total": 10}],
	"subtotal": 10, "tax": 0, "total": 10
}`

func TestDecodeInvoice(t *testing.T) {
	inv, err := DecodeInvoice([]byte(fullInvoiceJSON))
	require.NoError(t, err)
	assert.Equal(t, "2 Side St", inv.ClientAddress)
	assert.Zero(t, inv.Tax)

	_, err = DecodeInvoice([]byte(strings.Replace(fullInvoiceJSON,
		`[{"description": "Widget", "quantity": 2, "price": 5, "total": 10}]`, `[]`, 1)))
	assert.NoError(t, err)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"not json", "{nope", "body"},
		{"missing tax", strings.Replace(fullInvoiceJSON, `"tax": 0, `, "", 1), "tax"},
		{"null address", strings.Replace(fullInvoiceJSON, `"2 Side St"`, "null", 1), "client_address"},
		{"missing company address", strings.Replace(fullInvoiceJSON, `"company_address": "1 Main St", `, "", 1), "company_address"},
		{"item without price", strings.Replace(fullInvoiceJSON, `"price": 5, `, "", 1), "items[0].price"},
		{"blank name", strings.Replace(fullInvoiceJSON, `"Acme"`, `" "`, 1), "company_name"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeInvoice([]byte(tc.body))
			var ve *ValidationError
			if assert.ErrorAs(t, err, &ve) {
				assert.Equal(t, tc.field, ve.Field)
			}
		})
	}
}
