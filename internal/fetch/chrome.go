package fetch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

const hideWebdriverScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// ChromeOptions configures the headless browser.
type ChromeOptions struct {
	Headless   bool
	UserAgents []string
	Timeout    time.Duration
}

// ChromeRenderer renders pages in a single Chrome tab driven through chromedp.
type ChromeRenderer struct {
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
	timeout       time.Duration
	logger        *logrus.Logger
}

// NewChromeRenderer launches a browser with a randomized identity and the
// automation fingerprints suppressed.
func NewChromeRenderer(parent context.Context, opts ChromeOptions, logger *logrus.Logger) (*ChromeRenderer, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	userAgent := PickUserAgent(opts.UserAgents)
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriverScript).Do(ctx)
		return err
	}))
	if err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.WithField("user_agent", userAgent).Info("Browser session started")

	return &ChromeRenderer{
		browserCtx:    browserCtx,
		cancelAlloc:   cancelAlloc,
		cancelBrowser: cancelBrowser,
		timeout:       opts.Timeout,
		logger:        logger,
	}, nil
}

func (r *ChromeRenderer) Render(ctx context.Context, url string, settle time.Duration) (Page, error) {
	if err := r.browserCtx.Err(); err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrSessionLost, err)
	}

	runCtx, cancel := context.WithTimeout(r.browserCtx, r.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var p Page
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(settle),
		chromedp.OuterHTML("html", &p.HTML, chromedp.ByQuery),
		chromedp.Location(&p.FinalURL),
		chromedp.Title(&p.Title),
	)
	if err != nil {
		if r.browserCtx.Err() != nil {
			return Page{}, fmt.Errorf("%w: %v", ErrSessionLost, err)
		}
		return Page{}, fmt.Errorf("render %s: %w", url, err)
	}
	return p, nil
}

// IsAlive reads the current location of the tab.
func (r *ChromeRenderer) IsAlive(ctx context.Context) error {
	if err := r.browserCtx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionLost, err)
	}

	probeCtx, cancel := context.WithTimeout(r.browserCtx, 10*time.Second)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var location string
	if err := chromedp.Run(probeCtx, chromedp.Location(&location)); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionLost, err)
	}
	return nil
}

func (r *ChromeRenderer) Close() error {
	r.cancelBrowser()
	r.cancelAlloc()
	return nil
}
