package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/openclerk/invoiceaudit/internal/config"
	"github.com/openclerk/invoiceaudit/internal/crosscheck"
	"github.com/openclerk/invoiceaudit/internal/embedding"
	"github.com/openclerk/invoiceaudit/internal/models"
	"github.com/openclerk/invoiceaudit/internal/rag"
	"github.com/openclerk/invoiceaudit/internal/refdata"
	"github.com/openclerk/invoiceaudit/internal/storage"
	"github.com/openclerk/invoiceaudit/internal/vector"
)

type scriptedLLM struct{}

func (scriptedLLM) Complete(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "relevance ranking system"):
		return "[0]", nil
	case strings.Contains(prompt, "Invoice Auditor Assistant"):
		return "The vendor is Acme Corp.", nil
	default:
		return `{"metrics": [{"name": "answer_relevance", "score": 0.9}, {"name": "faithfulness", "score": 0.9}]}`, nil
	}
}

type fakeRefStore struct {
	skus    map[string]bool
	prices  map[string]float64
	vendors map[string]*refdata.Vendor
	pos     map[string]*refdata.PurchaseOrder
}

func (f *fakeRefStore) GetSKU(code string) (*refdata.SKU, bool) {
	if f.skus[code] {
		return &refdata.SKU{ItemCode: code}, true
	}
	return nil, false
}

func (f *fakeRefStore) GetVendor(id string) (*refdata.Vendor, bool) {
	v, ok := f.vendors[id]
	return v, ok
}

func (f *fakeRefStore) GetPO(number string) (*refdata.PurchaseOrder, bool) {
	po, ok := f.pos[number]
	return po, ok
}

func (f *fakeRefStore) FirstPOPrice(code string) (float64, bool) {
	p, ok := f.prices[code]
	return p, ok
}

type fakeStorage struct {
	counts  map[models.Status]int64
	chunks  int64
	records []*models.ProcessingRecord
}

func (f *fakeStorage) SaveRecord(context.Context, *models.ProcessingRecord) error { return nil }

func (f *fakeStorage) GetRecord(_ context.Context, id string) (*models.ProcessingRecord, error) {
	for _, rec := range f.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
}

func (f *fakeStorage) ListRecords(context.Context, int, int) ([]*models.ProcessingRecord, error) {
	return f.records, nil
}

func (f *fakeStorage) CountRecordsByStatus(context.Context) (map[models.Status]int64, error) {
	return f.counts, nil
}

func (f *fakeStorage) BatchCreateChunks(context.Context, []*storage.Chunk) error { return nil }

func (f *fakeStorage) GetChunksBySource(context.Context, string) ([]*storage.Chunk, error) {
	return nil, nil
}

func (f *fakeStorage) DeleteChunksBySource(context.Context, string) error { return nil }

func (f *fakeStorage) CountChunks(context.Context) (int64, error) { return f.chunks, nil }

func (f *fakeStorage) Close() error { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	idx, err := vector.NewMemoryIndex(32)
	if err != nil {
		t.Fatal(err)
	}
	knowledge := rag.NewEngine(embedding.NewHashEmbedder(32), idx, scriptedLLM{})
	if _, err := knowledge.Ingest(context.Background(), "INVOICE #999\nVendor: Acme Corp",
		map[string]string{"filename": "invoice999.txt"}); err != nil {
		t.Fatal(err)
	}

	refStore := &fakeRefStore{
		skus:   map[string]bool{"SKU-001": true},
		prices: map[string]float64{"SKU-001": 12.00},
		vendors: map[string]*refdata.Vendor{
			"V-100": {VendorID: "V-100", Name: "Acme Corp", Country: "DE"},
		},
		pos: map[string]*refdata.PurchaseOrder{
			"PO-2024-001": {PONumber: "PO-2024-001", VendorID: "V-100", Currency: "EUR"},
		},
	}

	cfg := &config.Config{}
	cfg.Inbox.Directory = "/inbox"
	cfg.Knowledge.ChunkSize = 1000

	store := &fakeStorage{
		counts: map[models.Status]int64{models.StatusCompleted: 3},
		chunks: 7,
		records: []*models.ProcessingRecord{
			{ID: "rec-1", FileName: "invoice999.txt", Status: models.StatusCompleted},
		},
	}
	return NewServer(knowledge, crosscheck.NewEngine(refStore), refStore, store,
		idx, cfg, zap.NewNop())
}

func TestHandleAsk(t *testing.T) {
	srv := newTestServer(t)
	body := bytes.NewBufferString(`{"question": "Who is the vendor?"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", body)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var answer models.Answer
	if err := json.Unmarshal(rr.Body.Bytes(), &answer); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(answer.Answer, "Acme Corp") {
		t.Errorf("answer = %q", answer.Answer)
	}
	if len(answer.Context) == 0 {
		t.Error("answer should carry context")
	}
	if answer.Evaluation == nil || !answer.Evaluation.IsPassing {
		t.Errorf("evaluation = %+v", answer.Evaluation)
	}
}

func TestHandleAsk_BadRequest(t *testing.T) {
	srv := newTestServer(t)
	for name, body := range map[string]string{
		"not json":       "{",
		"empty question": `{"question": ""}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(body))
			rr := httptest.NewRecorder()
			srv.Router().ServeHTTP(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestHandleCheck(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name string
		body string
		want crosscheck.Outcome
	}{
		{"match", `{"item_code": "SKU-001", "unit_price": 12.00}`, crosscheck.OutcomeMatch},
		{"discrepancy", `{"item_code": "SKU-001", "unit_price": 50.00}`, crosscheck.OutcomeDiscrepancy},
		{"mismatch", `{"item_code": "UNKNOWN-CODE", "unit_price": 1.00}`, crosscheck.OutcomeMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/check", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			srv.Router().ServeHTTP(rr, req)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d", rr.Code)
			}
			var result crosscheck.Result
			if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
				t.Fatal(err)
			}
			if result.Status != tc.want {
				t.Errorf("outcome = %s, want %s", result.Status, tc.want)
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["documents"].(float64) != 3 {
		t.Errorf("documents = %v", resp["documents"])
	}
	if resp["chunks"].(float64) != 7 {
		t.Errorf("chunks = %v", resp["chunks"])
	}
	if resp["vector_index_size"].(float64) < 1 {
		t.Errorf("vector_index_size = %v", resp["vector_index_size"])
	}
}

func TestHandleRecords(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var list struct {
		Records []models.ProcessingRecord `json:"records"`
		Count   int                       `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 || len(list.Records) != 1 {
		t.Fatalf("count = %d, records = %d, want 1", list.Count, len(list.Records))
	}
	if list.Records[0].FileName != "invoice999.txt" {
		t.Errorf("file name = %q", list.Records[0].FileName)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/records/rec-1", nil)
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/records/no-such-id", nil)
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown record", rr.Code)
	}
}

func TestHandleGetVendor(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/refdata/vendors/V-100", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var vendor refdata.Vendor
	if err := json.Unmarshal(rr.Body.Bytes(), &vendor); err != nil {
		t.Fatal(err)
	}
	if vendor.Name != "Acme Corp" {
		t.Errorf("vendor name = %q", vendor.Name)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/refdata/vendors/V-999", nil)
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown vendor", rr.Code)
	}
}

func TestHandleGetPO(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/refdata/po/PO-2024-001", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var po refdata.PurchaseOrder
	if err := json.Unmarshal(rr.Body.Bytes(), &po); err != nil {
		t.Fatal(err)
	}
	if po.VendorID != "V-100" {
		t.Errorf("po vendor = %q", po.VendorID)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/refdata/po/PO-0000", nil)
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown purchase order", rr.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
}
