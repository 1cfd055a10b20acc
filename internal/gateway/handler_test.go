package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/af-corp/fax-gateway/internal/auth"
	"github.com/af-corp/fax-gateway/internal/content"
	"github.com/af-corp/fax-gateway/internal/interfax"
)

func newTestHandler(p interfax.Provider) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := content.NewResolver(logger, content.WithConverterPath("/nonexistent/tiff2pdf"))
	factory := func(creds interfax.Credentials) *Service {
		return NewService(p, resolver, logger)
	}
	return NewHandler(factory, nil, logger)
}

func testRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/api/account/balance", h.Balance)
	r.Get("/api/faxes/inbound", h.ListInbound)
	r.Get("/api/faxes/outbound", h.ListOutbound)
	r.Get("/api/faxes/{direction}/{id}/content", h.Content)
	r.Get("/api/faxes/{direction}/{id}/status", h.Status)
	r.Post("/api/faxes/outbound", h.Send)
	r.Post("/api/faxes/outbound/{id}/cancel", h.Cancel)
	return r
}

func authed(r *http.Request) *http.Request {
	info := &auth.AccountInfo{
		ID:       "acct-1",
		Username: "tester",
		Provider: interfax.Credentials{Username: "ifx-user", Password: "ifx-pass"},
	}
	return r.WithContext(auth.ContextWithAccount(r.Context(), info))
}

func unconfigured(r *http.Request) *http.Request {
	info := &auth.AccountInfo{ID: "acct-1", Username: "tester"}
	return r.WithContext(auth.ContextWithAccount(r.Context(), info))
}

func TestHandler_Unauthenticated(t *testing.T) {
	h := newTestHandler(&fakeProvider{})
	router := testRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/faxes/inbound", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandler_NotConfigured(t *testing.T) {
	h := newTestHandler(&fakeProvider{})
	router := testRouter(h)

	req := unconfigured(httptest.NewRequest(http.MethodGet, "/api/faxes/inbound", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	// The dashboard matches this body verbatim to prompt for credentials.
	got := strings.TrimSpace(rec.Body.String())
	want := `{"error":"interfax credentials not configured"}`
	if got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestHandler_ListInbound(t *testing.T) {
	p := &fakeProvider{inbound: []interfax.RawFax{
		{
			"messageId":   float64(101),
			"phoneNumber": "+15550001111",
			"status":      float64(0),
			"pages":       float64(3),
			"receiveTime": "2025-04-01T10:00:00Z",
			"remoteCSID":  "ACME CORP",
		},
	}}
	h := newTestHandler(p)
	router := testRouter(h)

	req := authed(httptest.NewRequest(http.MethodGet, "/api/faxes/inbound?page=1&per_page=10", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data []map[string]any `json:"data"`
		Pagination struct {
			CurrentPage int `json:"current_page"`
			Total       int `json:"total"`
			TotalPages  int `json:"total_pages"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 1 {
		t.Fatalf("data length = %d", len(resp.Data))
	}
	item := resp.Data[0]
	if item["id"] != "101" {
		t.Errorf("id = %v, want numeric id coerced to string", item["id"])
	}
	if item["from_number"] != "+15550001111" {
		t.Errorf("from_number = %v", item["from_number"])
	}
	if item["status"] != "completed" {
		t.Errorf("status = %v, want completed for code 0", item["status"])
	}
	if item["sender_name"] != "ACME CORP" {
		t.Errorf("sender_name = %v, want CSID promoted", item["sender_name"])
	}
	if item["type"] != "inbound" {
		t.Errorf("type = %v", item["type"])
	}
	if resp.Pagination.CurrentPage != 1 || resp.Pagination.Total != 1 || resp.Pagination.TotalPages != 1 {
		t.Errorf("pagination = %+v", resp.Pagination)
	}
}

func TestHandler_ListInbound_PlaceholderCSIDNotPromoted(t *testing.T) {
	p := &fakeProvider{inbound: []interfax.RawFax{
		{"messageId": float64(7), "phoneNumber": "+15550001111", "remoteCSID": "INTERFAX"},
	}}
	h := newTestHandler(p)
	router := testRouter(h)

	req := authed(httptest.NewRequest(http.MethodGet, "/api/faxes/inbound", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got := resp.Data[0]["sender_name"]; got != "+15550001111" {
		t.Errorf("sender_name = %v, want fallback to number, not placeholder CSID", got)
	}
}

func TestHandler_Content_PDFHeaders(t *testing.T) {
	p := &fakeProvider{imageData: []byte("%PDF-1.4 fake")}
	h := newTestHandler(p)
	router := testRouter(h)

	req := authed(httptest.NewRequest(http.MethodGet, "/api/faxes/inbound/42/content", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `inline; filename="fax_42.pdf"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache, must-revalidate" {
		t.Errorf("Cache-Control = %q", cc)
	}
}

func TestHandler_Content_DegradedTIFFHeaders(t *testing.T) {
	// Converter path does not exist, so TIFF bytes are served unconverted.
	p := &fakeProvider{imageData: []byte("II*\x00tiff-bytes")}
	h := newTestHandler(p)
	router := testRouter(h)

	req := authed(httptest.NewRequest(http.MethodGet, "/api/faxes/inbound/42/content", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/tiff" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="fax_42.tiff"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestHandler_Content_NotFound(t *testing.T) {
	p := &fakeProvider{imageErr: interfax.ErrNotFound}
	h := newTestHandler(p)
	router := testRouter(h)

	req := authed(httptest.NewRequest(http.MethodGet, "/api/faxes/outbound/9/content", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandler_Content_BadDirectionUnauthenticated(t *testing.T) {
	h := newTestHandler(&fakeProvider{})
	router := testRouter(h)

	// The auth gate comes before path validation: no credentials means
	// 401 even when the direction segment is garbage.
	req := httptest.NewRequest(http.MethodGet, "/api/faxes/sideways/9/content", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandler_Status_BadDirectionUnauthenticated(t *testing.T) {
	h := newTestHandler(&fakeProvider{})
	router := testRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/faxes/sideways/9/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandler_Content_BadDirection(t *testing.T) {
	h := newTestHandler(&fakeProvider{})
	router := testRouter(h)

	req := authed(httptest.NewRequest(http.MethodGet, "/api/faxes/sideways/9/content", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestHandler_Status(t *testing.T) {
	p := &fakeProvider{findRaw: interfax.RawFax{
		"id":             "77",
		"status":         float64(1),
		"destinationFax": "+15559998888",
	}}
	h := newTestHandler(p)
	router := testRouter(h)

	req := authed(httptest.NewRequest(http.MethodGet, "/api/faxes/outbound/77/status", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got["status"] != "in_progress" {
		t.Errorf("status field = %v, want in_progress for code 1", got["status"])
	}
}

func multipartBody(t *testing.T, fields map[string]string, filename string, filedata []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(filedata)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHandler_Send(t *testing.T) {
	p := &fakeProvider{deliverResult: interfax.DeliverResult{ID: "900", Location: "https://rest.interfax.net/outbound/faxes/900"}}
	h := newTestHandler(p)
	router := testRouter(h)

	body, contentType := multipartBody(t, map[string]string{
		"fax_number": "+15551234567",
		"subject":    "hello",
	}, "doc.pdf", minimalPDF())

	req := httptest.NewRequest(http.MethodPost, "/api/faxes/outbound", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(req))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["id"] != "900" {
		t.Errorf("id = %v", resp["id"])
	}
	if resp["fax_number"] != "+15551234567" {
		t.Errorf("fax_number = %v", resp["fax_number"])
	}
	if resp["replyEmail"] != nil {
		t.Errorf("replyEmail = %v, want null when absent", resp["replyEmail"])
	}
}

func TestHandler_Send_MissingDocument(t *testing.T) {
	p := &fakeProvider{}
	h := newTestHandler(p)
	router := testRouter(h)

	body, contentType := multipartBody(t, map[string]string{"fax_number": "+15551234567"}, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/faxes/outbound", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(req))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if p.deliverCalls != 0 {
		t.Error("provider must not be called when validation fails")
	}
}

func TestHandler_Send_ProviderErrorRewritten(t *testing.T) {
	p := &fakeProvider{deliverErr: &interfax.Error{
		Op:         "deliver",
		StatusCode: 400,
		Body:       "you may only send to a designated fax number",
	}}
	h := newTestHandler(p)
	router := testRouter(h)

	body, contentType := multipartBody(t, map[string]string{"fax_number": "+15551234567"}, "doc.pdf", minimalPDF())
	req := httptest.NewRequest(http.MethodPost, "/api/faxes/outbound", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(req))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "designated numbers") {
		t.Errorf("body = %s, want friendly rewrite", rec.Body.String())
	}
}

func TestHandler_Cancel(t *testing.T) {
	h := newTestHandler(&fakeProvider{})
	router := testRouter(h)

	req := authed(httptest.NewRequest(http.MethodPost, "/api/faxes/outbound/5/cancel", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["id"] != "5" || resp["status"] != "cancelled" {
		t.Errorf("response = %v", resp)
	}
}

func TestHandler_Balance(t *testing.T) {
	h := newTestHandler(&fakeProvider{balance: 42.5})
	router := testRouter(h)

	req := authed(httptest.NewRequest(http.MethodGet, "/api/account/balance", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]float64
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["balance"] != 42.5 {
		t.Errorf("balance = %v", resp["balance"])
	}
}
