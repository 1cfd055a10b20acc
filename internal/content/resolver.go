// Package content turns raw provider document bytes into something a
// browser can use: it sniffs the binary format and, for fax TIFFs, shells
// out to tiff2pdf so the document can be previewed inline. Conversion is
// strictly best-effort; any failure falls back to serving the original
// bytes, never to failing the request.
package content

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/af-corp/fax-gateway/internal/types"
)

const (
	MimePDF  = "application/pdf"
	MimeTIFF = "image/tiff"
	MimePNG  = "image/png"

	DefaultConverterPath = "/usr/local/bin/tiff2pdf"
	DefaultTimeout       = 10 * time.Second
)

var pdfMagic = []byte("%PDF-")

// Sniff classifies document bytes by magic prefix. Unrecognized content is
// reported as PDF and passed through untouched.
func Sniff(data []byte) string {
	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return MimePDF
	case bytes.HasPrefix(data, []byte("II*")),
		bytes.HasPrefix(data, []byte("MM*")),
		bytes.HasPrefix(data, []byte("TIFF")):
		return MimeTIFF
	case bytes.HasPrefix(data, []byte("GIF")),
		bytes.HasPrefix(data, []byte("PNG")):
		return MimePNG
	}
	return MimePDF
}

// Disposition applies the serving policy: TIFF always downloads (browsers
// cannot render it), PDF always previews, and anything else honors the
// caller's inline flag, defaulting to download.
func Disposition(mimeType string, inlineRequested bool) types.Disposition {
	switch mimeType {
	case MimeTIFF:
		return types.DispositionAttachment
	case MimePDF:
		return types.DispositionInline
	}
	if inlineRequested {
		return types.DispositionInline
	}
	return types.DispositionAttachment
}

// Resolver converts fax documents for preview. The zero value is not
// usable; construct with NewResolver.
type Resolver struct {
	converterPath string
	timeout       time.Duration
	tempDir       string
	logger        *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithConverterPath(path string) Option {
	return func(r *Resolver) { r.converterPath = path }
}

func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithTempDir overrides where conversion scratch files are created.
func WithTempDir(dir string) Option {
	return func(r *Resolver) { r.tempDir = dir }
}

func NewResolver(logger *slog.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		converterPath: DefaultConverterPath,
		timeout:       DefaultTimeout,
		tempDir:       os.TempDir(),
		logger:        logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve sniffs the document format and converts TIFF to PDF when
// possible. The returned blob always carries the bytes to serve; Degraded
// marks responses where conversion was attempted but the original TIFF was
// served instead.
func (r *Resolver) Resolve(ctx context.Context, data []byte, faxID string, inlineRequested bool) types.ContentBlob {
	mimeType := Sniff(data)
	finalData := data
	degraded := false

	if mimeType == MimeTIFF {
		converted, err := r.convertTIFF(ctx, data)
		if err != nil {
			// Serve the original TIFF as a download instead of
			// failing the request.
			r.logger.Warn("tiff to pdf conversion degraded, serving original",
				"fax_id", faxID, "error", err)
			degraded = true
		} else {
			r.logger.Info("converted tiff to pdf",
				"fax_id", faxID,
				"original_size", len(data),
				"converted_size", len(converted))
			finalData = converted
			mimeType = MimePDF
		}
	}

	return types.ContentBlob{
		Bytes:       finalData,
		MimeType:    mimeType,
		Disposition: Disposition(mimeType, inlineRequested),
		SizeBytes:   len(finalData),
		Degraded:    degraded,
	}
}

// convertTIFF runs the external converter over a scoped temp-file pair.
// Both files are removed on every exit path.
func (r *Resolver) convertTIFF(ctx context.Context, data []byte) ([]byte, error) {
	if _, err := os.Stat(r.converterPath); err != nil {
		return nil, fmt.Errorf("converter %s not available: %w", r.converterPath, err)
	}

	in, err := os.CreateTemp(r.tempDir, "fax-tiff-*.tif")
	if err != nil {
		return nil, fmt.Errorf("create temp tiff: %w", err)
	}
	defer os.Remove(in.Name())

	out, err := os.CreateTemp(r.tempDir, "fax-pdf-*.pdf")
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("create temp pdf: %w", err)
	}
	defer os.Remove(out.Name())
	out.Close()

	if _, err := in.Write(data); err != nil {
		in.Close()
		return nil, fmt.Errorf("write temp tiff: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("close temp tiff: %w", err)
	}

	// An unbounded external process is a latency hazard; the timeout
	// turns a hung converter into a degraded response.
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.converterPath, "-o", out.Name(), in.Name())
	if cmdOut, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("run converter: %w (output: %s)", err, bytes.TrimSpace(cmdOut))
	}

	converted, err := os.ReadFile(out.Name())
	if err != nil {
		return nil, fmt.Errorf("read converter output: %w", err)
	}
	if len(converted) == 0 {
		return nil, fmt.Errorf("converter produced empty output")
	}
	if !bytes.HasPrefix(converted, pdfMagic) {
		return nil, fmt.Errorf("converter output is not a pdf")
	}

	// Page count is informational only; tiff2pdf output occasionally
	// trips strict validation even when browsers render it fine.
	if pages, err := api.PageCountFile(out.Name()); err == nil {
		r.logger.Debug("converted pdf page count", "pages", pages)
	}

	return converted, nil
}
