package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Display provides an X display for a visible browser session.
type Display interface {
	// Start returns the DISPLAY value and a function releasing it.
	Start(ctx context.Context) (string, func() error, error)
}

// StaticDisplay reuses an already running X server.
type StaticDisplay string

// Start returns the configured display unchanged.
func (d StaticDisplay) Start(context.Context) (string, func() error, error) {
	return string(d), func() error { return nil }, nil
}

// XvfbDisplay launches a private Xvfb server per session.
type XvfbDisplay struct {
	Path   string
	Screen string
	// Base is the first display number handed out.
	Base int
	// SocketDir is where Xvfb creates its sockets.
	SocketDir string

	next atomic.Int32
}

// Start launches Xvfb on the next free display number and waits for its socket.
func (d *XvfbDisplay) Start(ctx context.Context) (string, func() error, error) {
	path := d.Path
	if path == "" {
		path = "Xvfb"
	}
	screen := d.Screen
	if screen == "" {
		screen = "1920x1080x24"
	}
	base := d.Base
	if base <= 0 {
		base = 99
	}
	socketDir := d.SocketDir
	if socketDir == "" {
		socketDir = "/tmp/.X11-unix"
	}

	number := base + int(d.next.Add(1)) - 1
	name := ":" + strconv.Itoa(number)

	cmd := exec.Command(path, name, "-screen", "0", screen, "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return "", nil, fmt.Errorf("start xvfb: %w", err)
	}
	stop := func() error {
		if cmd.Process == nil {
			return nil
		}
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil
	}

	socket := filepath.Join(socketDir, "X"+strconv.Itoa(number))
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(5 * time.Second)
	for {
		if _, err := os.Stat(socket); err == nil {
			return name, stop, nil
		}
		select {
		case <-ctx.Done():
			_ = stop()
			return "", nil, ctx.Err()
		case <-deadline:
			_ = stop()
			return "", nil, fmt.Errorf("xvfb display %s did not come up", name)
		case <-ticker.C:
		}
	}
}

// BrowserTransport renders pages in a visible Chromium inside a virtual display.
type BrowserTransport struct {
	ExecPath string
	Display  Display
	Timeout  time.Duration
}

// Name identifies the transport in results and logs.
func (t *BrowserTransport) Name() string {
	return string(KindBrowser)
}

// Fetch navigates to the request URL and returns the rendered document.
func (t *BrowserTransport) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("request is required")
	}
	if method := strings.ToUpper(strings.TrimSpace(req.Method)); method != "" && method != http.MethodGet {
		return nil, fmt.Errorf("browser transport does not support %s", method)
	}
	if len(req.Body) > 0 || req.JSONBody != nil {
		return nil, errors.New("browser transport does not send request bodies")
	}

	target, err := req.RequestURL()
	if err != nil {
		return nil, err
	}

	display := t.Display
	if display == nil {
		display = &XvfbDisplay{}
	}
	displayName, release, err := display.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer release() // nolint:errcheck // display teardown is best-effort

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", false),
		chromedp.Env("DISPLAY="+displayName),
	)
	if t.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(t.ExecPath))
	}
	if req.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(req.Proxy))
	}

	extra := network.Headers{}
	for key, value := range req.Headers {
		if strings.EqualFold(key, "User-Agent") {
			opts = append(opts, chromedp.UserAgent(value))
			continue
		}
		extra[key] = value
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancel := context.WithTimeout(browserCtx, t.timeout())
	defer cancel()

	if err := chromedp.Run(runCtx, network.Enable(), network.SetExtraHTTPHeaders(extra)); err != nil {
		return nil, classifyBrowserError(ctx, err)
	}

	navigation, err := chromedp.RunResponse(runCtx, chromedp.Navigate(target))
	if err != nil {
		return nil, classifyBrowserError(ctx, err)
	}

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, classifyBrowserError(ctx, err)
	}

	resp := &Response{StatusCode: http.StatusOK, Body: []byte(html), URL: target, Header: http.Header{}}
	if navigation != nil {
		resp.StatusCode = int(navigation.Status)
		resp.URL = navigation.URL
		for key, value := range navigation.Headers {
			resp.Header.Set(key, fmt.Sprint(value))
		}
	}
	return resp, nil
}

func (t *BrowserTransport) timeout() time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return DefaultTimeout
}

// classifyBrowserError maps navigation failures onto the transient taxonomy.
func classifyBrowserError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if strings.Contains(err.Error(), "net::ERR_") || errors.Is(err, context.DeadlineExceeded) {
		return Transient("browser navigate", err)
	}
	return err
}
