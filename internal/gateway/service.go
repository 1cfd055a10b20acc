// Package gateway is the single entry point callers use to talk to the fax
// provider. It composes the wire adapter, the response normalizer, the
// content resolver, and the pagination engine into the seven operations the
// HTTP surface exposes. One Service is constructed per request for one
// account's credentials; nothing here outlives a request.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/af-corp/fax-gateway/internal/content"
	"github.com/af-corp/fax-gateway/internal/interfax"
	"github.com/af-corp/fax-gateway/internal/normalize"
	"github.com/af-corp/fax-gateway/internal/page"
	"github.com/af-corp/fax-gateway/internal/telemetry"
	"github.com/af-corp/fax-gateway/internal/types"
)

// DefaultListWindow is how many recent records a list operation fetches
// from the provider before paginating client-side. See internal/page for
// the tradeoff this implies.
const DefaultListWindow = 50

const maxDocumentBytes = 10 << 20

var faxNumberPattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

// allowed upload extensions, lowercase, without dot.
var allowedExtensions = map[string]string{
	"pdf":  "application/pdf",
	"tiff": "image/tiff",
	"tif":  "image/tiff",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// Service executes gateway operations against one account's provider
// credentials.
type Service struct {
	provider interfax.Provider
	resolver *content.Resolver
	window   int
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

func WithListWindow(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.window = n
		}
	}
}

func WithMetrics(m *telemetry.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func NewService(provider interfax.Provider, resolver *content.Resolver, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		provider: provider,
		resolver: resolver,
		window:   DefaultListWindow,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListInbound fetches the recent inbound window, normalizes it, sorts by
// completion time descending, and slices the requested page.
func (s *Service) ListInbound(ctx context.Context, pageNum, perPage int) (page.Page[types.FaxRecord], error) {
	raws, err := s.timedList(ctx, "list_inbound", s.provider.ListInbound)
	if err != nil {
		return page.Page[types.FaxRecord]{}, fmt.Errorf("list inbound faxes: %w", err)
	}
	records := s.normalizeAll(types.DirectionInbound, raws)
	slices.SortFunc(records, func(a, b types.FaxRecord) int {
		return strings.Compare(b.CompletionTime, a.CompletionTime)
	})
	return page.Paginate(records, pageNum, perPage), nil
}

// ListOutbound fetches the recent outbound window, sorted by submit time
// descending.
func (s *Service) ListOutbound(ctx context.Context, pageNum, perPage int) (page.Page[types.FaxRecord], error) {
	raws, err := s.timedList(ctx, "list_outbound", s.provider.ListOutbound)
	if err != nil {
		return page.Page[types.FaxRecord]{}, fmt.Errorf("list outbound faxes: %w", err)
	}
	records := s.normalizeAll(types.DirectionOutbound, raws)
	slices.SortFunc(records, func(a, b types.FaxRecord) int {
		return strings.Compare(b.SubmitTime, a.SubmitTime)
	})
	return page.Paginate(records, pageNum, perPage), nil
}

func (s *Service) timedList(ctx context.Context, op string, fetch func(context.Context, int, int) ([]interfax.RawFax, error)) ([]interfax.RawFax, error) {
	start := time.Now()
	raws, err := fetch(ctx, s.window, 0)
	if s.metrics != nil {
		s.metrics.RecordProviderDuration(op, float64(time.Since(start).Milliseconds()))
	}
	return raws, err
}

// normalizeAll degrades per record, never for the window: a record that
// normalizes without an id is dropped and logged, the rest survive.
func (s *Service) normalizeAll(dir types.Direction, raws []interfax.RawFax) []types.FaxRecord {
	records := make([]types.FaxRecord, 0, len(raws))
	for _, raw := range raws {
		rec := normalize.Record(dir, raw)
		if rec.ID == "" {
			s.logger.Error("dropping record with no id", "direction", dir)
			if s.metrics != nil {
				s.metrics.RecordSkipped(string(dir))
			}
			continue
		}
		records = append(records, rec)
	}
	return records
}

// Status fetches and normalizes a single fax.
func (s *Service) Status(ctx context.Context, dir types.Direction, id string) (types.FaxRecord, error) {
	raw, err := s.provider.Find(ctx, string(dir), id)
	if err != nil {
		if errors.Is(err, interfax.ErrNotFound) {
			return types.FaxRecord{}, &ContentUnavailableError{Direction: dir, ID: id}
		}
		return types.FaxRecord{}, fmt.Errorf("get fax status %s/%s: %w", dir, id, err)
	}
	rec := normalize.Record(dir, raw)
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, nil
}

// Content fetches the document bytes for a fax and resolves them into a
// servable blob, converting TIFF to PDF when the converter cooperates.
func (s *Service) Content(ctx context.Context, dir types.Direction, id string, inlineRequested bool) (types.ContentBlob, error) {
	start := time.Now()
	data, err := s.provider.Image(ctx, string(dir), id)
	if s.metrics != nil {
		s.metrics.RecordProviderDuration("image_"+string(dir), float64(time.Since(start).Milliseconds()))
	}
	if err != nil {
		if errors.Is(err, interfax.ErrNotFound) {
			return types.ContentBlob{}, &ContentUnavailableError{Direction: dir, ID: id}
		}
		return types.ContentBlob{}, fmt.Errorf("fetch fax content %s/%s: %w", dir, id, err)
	}

	blob := s.resolver.Resolve(ctx, data, id, inlineRequested)
	if s.metrics != nil {
		switch {
		case blob.Degraded:
			s.metrics.RecordConversion(telemetry.ConversionDegraded)
		case blob.MimeType == content.MimePDF && content.Sniff(data) == content.MimeTIFF:
			s.metrics.RecordConversion(telemetry.ConversionConverted)
		default:
			s.metrics.RecordConversion(telemetry.ConversionPassthrough)
		}
		s.metrics.RecordContentServed(blob.MimeType, blob.SizeBytes)
	}
	return blob, nil
}

// SendRequest is an outbound submission from the HTTP layer. Exactly one of
// Document or FileURL must be set.
type SendRequest struct {
	FaxNumber string
	Document  []byte
	Filename  string
	FileURL   string

	Subject       string
	ReplyEmail    string
	RecipientName string
}

// SendResult acknowledges a submission.
type SendResult struct {
	ID       string `json:"id"`
	Location string `json:"location,omitempty"`
}

// Validate applies all input checks. It runs before any provider call.
func (r *SendRequest) Validate() error {
	if !faxNumberPattern.MatchString(r.FaxNumber) {
		return &ValidationError{Message: "fax_number must be an international number like +1555123456"}
	}
	hasFile := len(r.Document) > 0
	hasURL := r.FileURL != ""
	if hasFile == hasURL {
		return &ValidationError{Message: "exactly one of file or file_url is required"}
	}
	if hasFile {
		if len(r.Document) > maxDocumentBytes {
			return &ValidationError{Message: "file exceeds the 10MB limit"}
		}
		ext := strings.ToLower(strings.TrimPrefix(extension(r.Filename), "."))
		if _, ok := allowedExtensions[ext]; !ok {
			return &ValidationError{Message: "file must be one of: pdf, tiff, tif, doc, docx"}
		}
		// The extension is a claim; for PDFs the bytes have to back it
		// up before anything is submitted upstream.
		if ext == "pdf" {
			if n, err := api.PageCount(bytes.NewReader(r.Document), nil); err != nil || n < 1 {
				return &ValidationError{Message: "file is not a readable PDF"}
			}
		}
	}
	return nil
}

func extension(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}

// Send validates and submits an outbound fax. Caller-facing parameter names
// map onto the three out-parameters the provider recognizes: subject →
// reference, replyEmail → replyAddress, recipient_name → contact.
func (s *Service) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if err := req.Validate(); err != nil {
		return SendResult{}, err
	}

	deliver := interfax.DeliverRequest{
		FaxNumber:    req.FaxNumber,
		Document:     req.Document,
		FileURL:      req.FileURL,
		Reference:    req.Subject,
		ReplyAddress: req.ReplyEmail,
		Contact:      req.RecipientName,
	}
	if len(req.Document) > 0 {
		ext := strings.ToLower(strings.TrimPrefix(extension(req.Filename), "."))
		deliver.MediaType = allowedExtensions[ext]
	}

	start := time.Now()
	result, err := s.provider.Deliver(ctx, deliver)
	if s.metrics != nil {
		s.metrics.RecordProviderDuration("deliver", float64(time.Since(start).Milliseconds()))
	}
	if err != nil {
		return SendResult{}, fmt.Errorf("send fax to %s: %w", req.FaxNumber, err)
	}

	s.logger.Info("fax submitted", "fax_id", result.ID, "fax_number", req.FaxNumber)
	return SendResult{ID: result.ID, Location: result.Location}, nil
}

// Cancel aborts a pending outbound fax.
func (s *Service) Cancel(ctx context.Context, id string) error {
	if err := s.provider.Cancel(ctx, id); err != nil {
		if errors.Is(err, interfax.ErrNotFound) {
			return &ContentUnavailableError{Direction: types.DirectionOutbound, ID: id}
		}
		return fmt.Errorf("cancel fax %s: %w", id, err)
	}
	return nil
}

// Balance returns the provider account's remaining credit.
func (s *Service) Balance(ctx context.Context) (float64, error) {
	balance, err := s.provider.Balance(ctx)
	if err != nil {
		return 0, fmt.Errorf("get account balance: %w", err)
	}
	return balance, nil
}
