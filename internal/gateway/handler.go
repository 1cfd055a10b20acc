package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/af-corp/fax-gateway/internal/auth"
	"github.com/af-corp/fax-gateway/internal/httputil"
	"github.com/af-corp/fax-gateway/internal/interfax"
	"github.com/af-corp/fax-gateway/internal/page"
	"github.com/af-corp/fax-gateway/internal/telemetry"
	"github.com/af-corp/fax-gateway/internal/types"
)

// placeholderCSID is the provider's default station id; it carries no
// sender identity and is never promoted to a display name.
const placeholderCSID = "INTERFAX"

// ServiceFactory builds a Service bound to one account's credentials. A
// fresh Service per request keeps credentials from leaking across accounts.
type ServiceFactory func(creds interfax.Credentials) *Service

// Handler holds dependencies for the fax HTTP handlers.
type Handler struct {
	services ServiceFactory
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

func NewHandler(services ServiceFactory, metrics *telemetry.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{services: services, metrics: metrics, logger: logger}
}

// service resolves the request's account into a credential-bound Service.
// The nil return paths have already written the error response.
func (h *Handler) service(w http.ResponseWriter, r *http.Request) *Service {
	info, ok := auth.AccountFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, "Not authenticated")
		return nil
	}
	if !info.Configured() {
		httputil.WriteNotConfigured(w)
		return nil
	}
	return h.services(info.Provider)
}

func pageParams(r *http.Request) (pageNum, perPage int) {
	pageNum = 1
	perPage = page.DefaultPerPage
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		pageNum = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("per_page")); err == nil {
		perPage = v
	}
	return pageNum, perPage
}

type listResponse struct {
	Data       []map[string]any `json:"data"`
	Pagination paginationMeta   `json:"pagination"`
}

type paginationMeta struct {
	CurrentPage     int  `json:"current_page"`
	PerPage         int  `json:"per_page"`
	Total           int  `json:"total"`
	TotalPages      int  `json:"total_pages"`
	HasNextPage     bool `json:"has_next_page"`
	HasPreviousPage bool `json:"has_previous_page"`
	NextPage        *int `json:"next_page"`
	PreviousPage    *int `json:"previous_page"`
	From            int  `json:"from"`
	To              int  `json:"to"`
}

func meta(p page.Page[types.FaxRecord]) paginationMeta {
	return paginationMeta{
		CurrentPage:     p.CurrentPage,
		PerPage:         p.PerPage,
		Total:           p.Total,
		TotalPages:      p.TotalPages,
		HasNextPage:     p.HasNext,
		HasPreviousPage: p.HasPrevious,
		NextPage:        p.NextPage,
		PreviousPage:    p.PreviousPage,
		From:            p.From,
		To:              p.To,
	}
}

// ListInbound handles GET /api/faxes/inbound.
func (h *Handler) ListInbound(w http.ResponseWriter, r *http.Request) {
	svc := h.service(w, r)
	if svc == nil {
		return
	}
	pageNum, perPage := pageParams(r)

	p, err := svc.ListInbound(r.Context(), pageNum, perPage)
	if err != nil {
		h.logger.Error("failed to fetch inbound faxes", "error", err)
		h.record("list_inbound", "inbound", "500")
		httputil.WriteInternalError(w, "Failed to fetch inbound faxes", err.Error())
		return
	}

	items := make([]map[string]any, 0, len(p.Items))
	for _, rec := range p.Items {
		items = append(items, inboundItem(rec))
	}
	h.record("list_inbound", "inbound", "200")
	writeJSON(w, http.StatusOK, listResponse{Data: items, Pagination: meta(p)})
}

// ListOutbound handles GET /api/faxes/outbound.
func (h *Handler) ListOutbound(w http.ResponseWriter, r *http.Request) {
	svc := h.service(w, r)
	if svc == nil {
		return
	}
	pageNum, perPage := pageParams(r)

	p, err := svc.ListOutbound(r.Context(), pageNum, perPage)
	if err != nil {
		h.logger.Error("failed to fetch outbound faxes", "error", err)
		h.record("list_outbound", "outbound", "500")
		httputil.WriteInternalError(w, "Failed to fetch outbound faxes", err.Error())
		return
	}

	items := make([]map[string]any, 0, len(p.Items))
	for _, rec := range p.Items {
		items = append(items, outboundItem(rec))
	}
	h.record("list_outbound", "outbound", "200")
	writeJSON(w, http.StatusOK, listResponse{Data: items, Pagination: meta(p)})
}

// Content handles GET /api/faxes/{direction}/{id}/content.
func (h *Handler) Content(w http.ResponseWriter, r *http.Request) {
	svc := h.service(w, r)
	if svc == nil {
		return
	}

	dir, err := types.ParseDirection(chi.URLParam(r, "direction"))
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	id := chi.URLParam(r, "id")

	inline := r.URL.Query().Get("inline") != ""
	blob, err := svc.Content(r.Context(), dir, id, inline)
	if err != nil {
		var unavailable *ContentUnavailableError
		if errors.As(err, &unavailable) {
			h.record("content", string(dir), "404")
			httputil.WriteNotFoundError(w, unavailable.Error())
			return
		}
		h.logger.Error("failed to get fax content", "error", err, "fax_id", id, "direction", dir)
		h.record("content", string(dir), "500")
		httputil.WriteInternalError(w, "Failed to retrieve fax content", err.Error())
		return
	}

	h.record("content", string(dir), "200")
	w.Header().Set("Content-Type", blob.MimeType)
	w.Header().Set("Content-Disposition", dispositionHeader(blob, id))
	w.Header().Set("Cache-Control", "no-cache, must-revalidate")
	w.Header().Set("Content-Length", strconv.Itoa(blob.SizeBytes))
	w.WriteHeader(http.StatusOK)
	w.Write(blob.Bytes)
}

func dispositionHeader(blob types.ContentBlob, id string) string {
	ext := "pdf"
	if blob.MimeType == "image/tiff" {
		ext = "tiff"
	}
	return string(blob.Disposition) + `; filename="fax_` + id + `.` + ext + `"`
}

// Status handles GET /api/faxes/{direction}/{id}/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	svc := h.service(w, r)
	if svc == nil {
		return
	}

	dir, err := types.ParseDirection(chi.URLParam(r, "direction"))
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	id := chi.URLParam(r, "id")

	rec, err := svc.Status(r.Context(), dir, id)
	if err != nil {
		var unavailable *ContentUnavailableError
		if errors.As(err, &unavailable) {
			h.record("status", string(dir), "404")
			httputil.WriteNotFoundError(w, unavailable.Error())
			return
		}
		h.logger.Error("failed to get fax status", "error", err, "fax_id", id, "direction", dir)
		h.record("status", string(dir), "500")
		httputil.WriteInternalError(w, "Failed to get fax status", err.Error())
		return
	}

	h.record("status", string(dir), "200")
	writeJSON(w, http.StatusOK, rec)
}

// Send handles POST /api/faxes/outbound (multipart).
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	svc := h.service(w, r)
	if svc == nil {
		return
	}

	if err := r.ParseMultipartForm(maxDocumentBytes); err != nil {
		httputil.WriteValidationError(w, "invalid multipart form: "+err.Error())
		return
	}

	req := SendRequest{
		FaxNumber:     r.FormValue("fax_number"),
		FileURL:       r.FormValue("file_url"),
		Subject:       r.FormValue("subject"),
		ReplyEmail:    r.FormValue("replyEmail"),
		RecipientName: r.FormValue("recipient_name"),
	}

	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxDocumentBytes+1))
		if err != nil {
			httputil.WriteValidationError(w, "could not read uploaded file")
			return
		}
		req.Document = data
		req.Filename = header.Filename
	}

	result, err := svc.Send(r.Context(), req)
	if err != nil {
		var validation *ValidationError
		if errors.As(err, &validation) {
			h.record("send", "outbound", "422")
			httputil.WriteValidationError(w, validation.Message)
			return
		}
		h.logger.Error("failed to send fax", "error", err, "fax_number", req.FaxNumber)
		h.record("send", "outbound", "500")
		httputil.WriteInternalError(w, "Failed to send fax: "+FriendlySendMessage(err.Error()), "")
		return
	}

	h.record("send", "outbound", "201")
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":             result.ID,
		"location":       result.Location,
		"fax_number":     req.FaxNumber,
		"subject":        emptyToNil(req.Subject),
		"replyEmail":     emptyToNil(req.ReplyEmail),
		"recipient_name": emptyToNil(req.RecipientName),
		"sent_at":        time.Now().UTC().Format(time.RFC3339),
	})
}

// Cancel handles POST /api/faxes/outbound/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	svc := h.service(w, r)
	if svc == nil {
		return
	}

	if err := svc.Cancel(r.Context(), id); err != nil {
		var unavailable *ContentUnavailableError
		if errors.As(err, &unavailable) {
			h.record("cancel", "outbound", "404")
			httputil.WriteNotFoundError(w, unavailable.Error())
			return
		}
		h.logger.Error("failed to cancel fax", "error", err, "fax_id", id)
		h.record("cancel", "outbound", "500")
		httputil.WriteInternalError(w, "Failed to cancel fax", err.Error())
		return
	}

	h.record("cancel", "outbound", "200")
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           id,
		"status":       "cancelled",
		"cancelled_at": time.Now().UTC().Format(time.RFC3339),
		"message":      "Fax cancelled successfully",
	})
}

// Balance handles GET /api/account/balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	svc := h.service(w, r)
	if svc == nil {
		return
	}

	balance, err := svc.Balance(r.Context())
	if err != nil {
		h.logger.Error("failed to get balance", "error", err)
		h.record("balance", "", "500")
		httputil.WriteInternalError(w, "Failed to get account balance", "")
		return
	}
	h.record("balance", "", "200")
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

func (h *Handler) record(operation, direction, status string) {
	if h.metrics != nil {
		h.metrics.RecordRequest(operation, direction, status)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func emptyToNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// inboundItem flattens a record into the dashboard's inbound shape.
func inboundItem(rec types.FaxRecord) map[string]any {
	name, email, details := extractSenderInfo(rec)
	return map[string]any{
		"id":             rec.ID,
		"from_number":    rec.CounterpartyNumber,
		"status":         rec.Status,
		"pages":          rec.PageCount,
		"received_at":    rec.CompletionTime,
		"duration":       rec.DurationSeconds,
		"csid":           rec.CSID,
		"sender_name":    name,
		"sender_email":   emptyToNil(email),
		"sender_details": details,
		"metadata":       rec.RawMetadata,
		"type":           "inbound",
		"created_at":     rec.CompletionTime,
		"updated_at":     rec.CompletionTime,
	}
}

// outboundItem flattens a record into the dashboard's outbound shape.
func outboundItem(rec types.FaxRecord) map[string]any {
	name, email, details := extractRecipientInfo(rec)
	updatedAt := rec.CompletionTime
	if updatedAt == "" {
		updatedAt = rec.SubmitTime
	}
	return map[string]any{
		"id":                rec.ID,
		"fax_number":        rec.CounterpartyNumber,
		"status":            rec.Status,
		"pages":             rec.PageCount,
		"sent_at":           rec.SubmitTime,
		"completion_time":   rec.CompletionTime,
		"duration":          rec.DurationSeconds,
		"cost":              rec.CostPerUnit,
		"subject":           emptyToNil(rec.Subject),
		"replyEmail":        emptyToNil(rec.ReplyEmail),
		"csid":              rec.CSID,
		"recipient_name":    name,
		"recipient_email":   emptyToNil(email),
		"recipient_details": details,
		"metadata":          rec.RawMetadata,
		"type":              "outbound",
		"created_at":        rec.SubmitTime,
		"updated_at":        updatedAt,
	}
}

// extractSenderInfo synthesizes display identity from the fields the
// provider actually has. The provider never reports a real sender name, so
// the CSID stands in when it is meaningful, otherwise the number.
func extractSenderInfo(rec types.FaxRecord) (name, email, details string) {
	name = "Unknown Sender"
	var parts []string

	if rec.CSID != "" && rec.CSID != placeholderCSID {
		name = rec.CSID
		parts = append(parts, "CSID: "+rec.CSID)
	}
	if rec.ReplyEmail != "" {
		email = rec.ReplyEmail
		parts = append(parts, "Reply Email: "+rec.ReplyEmail)
	}
	if rec.Subject != "" {
		parts = append(parts, "Subject: "+rec.Subject)
	}
	if rec.CounterpartyNumber != "" {
		parts = append(parts, "From: "+rec.CounterpartyNumber)
	}
	if len(parts) > 0 && name == "Unknown Sender" && rec.CounterpartyNumber != "" {
		name = rec.CounterpartyNumber
	}
	return name, email, strings.Join(parts, " | ")
}

// extractRecipientInfo mirrors extractSenderInfo for the outbound side.
func extractRecipientInfo(rec types.FaxRecord) (name, email, details string) {
	name = "Unknown Recipient"
	var parts []string

	if rec.ReplyEmail != "" {
		email = rec.ReplyEmail
		parts = append(parts, "Reply Email: "+rec.ReplyEmail)
	}
	if rec.Subject != "" {
		parts = append(parts, "Subject: "+rec.Subject)
	}
	if rec.CounterpartyNumber != "" {
		name = rec.CounterpartyNumber
		parts = append(parts, "To: "+rec.CounterpartyNumber)
	}
	if rec.CSID != "" {
		parts = append(parts, "CSID: "+rec.CSID)
	}
	return name, email, strings.Join(parts, " | ")
}
