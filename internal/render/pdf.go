package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/sony/gobreaker"
)

// ErrConversion is returned when HTML could not be converted to a valid PDF.
var ErrConversion = errors.New("pdf conversion failed")

const (
	// convertPath is the HTML conversion route of the converter service.
	convertPath = "/forms/chromium/convert/html"
	// maxPDFSize bounds the converter response.
	maxPDFSize = 64 << 20
	// breakerFailures is the consecutive failure count that opens the breaker.
	breakerFailures = 3
)

// PDFConverter converts HTML documents through an HTTP conversion service
// that accepts a multipart form with an index.html file and answers with the
// PDF bytes. Calls go through a circuit breaker so a dead converter fails runs
// fast instead of holding them until the timeout.
type PDFConverter struct {
	endpoint string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewPDFConverter creates a converter for the service at baseURL.
func NewPDFConverter(baseURL string, client *http.Client, logger *slog.Logger) *PDFConverter {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "pdf_converter")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pdf-converter",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &PDFConverter{
		endpoint: strings.TrimRight(baseURL, "/") + convertPath,
		http:     client,
		breaker:  breaker,
		logger:   logger,
	}
}

// Convert renders html to PDF. Every failure wraps ErrConversion.
func (c *PDFConverter) Convert(ctx context.Context, html []byte) ([]byte, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.convert(ctx, html)
	})
	if err != nil {
		if errors.Is(err, ErrConversion) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrConversion, err)
	}
	return out.([]byte), nil
}

func (c *PDFConverter) convert(ctx context.Context, html []byte) ([]byte, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, fmt.Errorf("%w: build form: %v", ErrConversion, err)
	}
	if _, err := part.Write(html); err != nil {
		return nil, fmt.Errorf("%w: build form: %v", ErrConversion, err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("%w: build form: %v", ErrConversion, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrConversion, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversion, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: converter returned HTTP %d: %s", ErrConversion, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrConversion, err)
	}
	if len(data) > maxPDFSize {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", ErrConversion, maxPDFSize)
	}

	pages, err := ValidatePDF(data)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("converted report", "pages", pages, "bytes", len(data), "duration_ms", time.Since(start).Milliseconds())
	return data, nil
}

// ValidatePDF parses data as a PDF and returns its page count. Empty or
// unparseable documents wrap ErrConversion.
func ValidatePDF(data []byte) (pages int, err error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return 0, fmt.Errorf("%w: response is not a PDF document", ErrConversion)
	}
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("%w: malformed PDF: %v", ErrConversion, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: malformed PDF: %v", ErrConversion, err)
	}
	pages = reader.NumPage()
	if pages == 0 {
		return 0, fmt.Errorf("%w: document has no pages", ErrConversion)
	}
	return pages, nil
}

// State reports the converter circuit breaker state, for readiness checks.
func (c *PDFConverter) State() gobreaker.State {
	return c.breaker.State()
}
