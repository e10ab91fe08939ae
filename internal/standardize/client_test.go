package standardize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func agentReply(structuredData string) string {
	return `{
		"translated_text": "INVOICE No: INV-2024-001",
		"detected_language": "de",
		"confidence_score": 0.95,
		"structured_data": ` + structuredData + `
	}`
}

func TestStandardize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.TargetLanguage != "English" {
			t.Errorf("target_language = %s", req.TargetLanguage)
		}
		if req.Metadata["sender"] != "invoice@consulting-gmbh.de" {
			t.Errorf("metadata not forwarded: %v", req.Metadata)
		}
		w.Write([]byte(agentReply(`{
			"invoice_no": "INV-2024-001",
			"vendor_id": "V-100",
			"currency": "EUR",
			"total_amount": 1050,
			"line_items": [
				{"item_code": "SKU-001", "qty": 10, "unit_price": 100, "total": 1000}
			]
		}`)))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	res, err := c.Standardize(context.Background(), "RECHNUNG ...", map[string]string{"sender": "invoice@consulting-gmbh.de"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Invoice.InvoiceNumber != "INV-2024-001" {
		t.Errorf("invoice_no = %s", res.Invoice.InvoiceNumber)
	}
	if len(res.Invoice.LineItems) != 1 || res.Invoice.LineItems[0].ItemCode != "SKU-001" {
		t.Errorf("line items = %+v", res.Invoice.LineItems)
	}
	if res.Invoice.OriginalLanguage != "de" || res.Invoice.TranslationConfidence != 0.95 {
		t.Errorf("language fields not carried over: %+v", res.Invoice)
	}
}

func TestStandardize_ErrorInStructuredData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(agentReply(`{"error": "text is not an invoice", "line_items": []}`)))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Standardize(context.Background(), "random text", nil)
	if err == nil {
		t.Fatal("error field in structured data should fail")
	}
	if !strings.Contains(err.Error(), "text is not an invoice") {
		t.Errorf("error should carry the agent message: %v", err)
	}
}

func TestStandardize_SchemaViolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// confidence_score out of range and structured_data missing
		w.Write([]byte(`{"translated_text": "x", "detected_language": "en", "confidence_score": 7}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.Standardize(context.Background(), "text", nil); err == nil {
		t.Error("schema violation should fail")
	}
}

func TestStandardize_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.Standardize(context.Background(), "text", nil); err == nil {
		t.Error("non-200 should fail")
	}
}
