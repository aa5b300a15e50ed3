package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Renderer turns a complete HTML document into PDF bytes.
type Renderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// chromeCandidates are looked up on PATH when no executable is configured.
var chromeCandidates = []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}

// ChromeRenderer prints HTML to A4 PDF with headless Chrome. Each call
// launches its own browser and tears it down before returning.
type ChromeRenderer struct {
	ExecPath string
	Timeout  time.Duration
}

func NewChromeRenderer(execPath string, timeout time.Duration) *ChromeRenderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChromeRenderer{ExecPath: execPath, Timeout: timeout}
}

func (r *ChromeRenderer) execPath() (string, error) {
	if r.ExecPath != "" {
		if _, err := exec.LookPath(r.ExecPath); err != nil {
			return "", fmt.Errorf("%w: %s not found", ErrPDFDependencyMissing, r.ExecPath)
		}
		return r.ExecPath, nil
	}
	for _, name := range chromeCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
}

// RenderPDF converts HTML to PDF using headless Chrome
func (r *ChromeRenderer) RenderPDF(ctx context.Context, html string) ([]byte, error) {
	path, err := r.execPath()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	// Chrome options for headless mode in container
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(path),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)

	// The browser process lives until both cancels have run.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	// url.QueryEscape uses + for spaces which is wrong for data URLs
	dataURL := "data:text/html;charset=utf-8," + percentEncodeForDataURL(html)

	var pdfData []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27). // A4
				WithPaperHeight(11.69).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome pdf generation failed: %w", err)
	}
	return pdfData, nil
}

// percentEncodeForDataURL encodes a string for use in a data URL
// Unlike url.QueryEscape, this properly encodes spaces as %20 for data URLs
func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z',
			c >= 'A' && c <= 'Z',
			c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			result.WriteByte(c)
		default:
			fmt.Fprintf(&result, "%%%02X", c)
		}
	}
	return result.String()
}

// sanitizeFilename replaces characters that are illegal in file names on
// common filesystems with an underscore.
func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(`\/:*?"<>|`, r) {
			return '_'
		}
		return r
	}, name)
}
