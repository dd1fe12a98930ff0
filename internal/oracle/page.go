package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"sketch-repair/internal/logger"
	"sketch-repair/internal/types"
)

// PageRunner loads the HTML file at path and returns the runtime errors it
// observed. Implementations must release every resource they acquire before
// returning, on success and on failure.
type PageRunner interface {
	Execute(ctx context.Context, path string) ([]types.ErrorEvent, error)
}

// PageRunnerFunc adapts a function to the PageRunner interface.
type PageRunnerFunc func(ctx context.Context, path string) ([]types.ErrorEvent, error)

// Execute calls f
func (f PageRunnerFunc) Execute(ctx context.Context, path string) ([]types.ErrorEvent, error) {
	return f(ctx, path)
}

// NoPage is a PageRunner that always fails with ErrDisabled.
var NoPage PageRunner = PageRunnerFunc(func(context.Context, string) ([]types.ErrorEvent, error) {
	return nil, ErrDisabled
})

// ExecuteDocument writes html to a uniquely named temporary file in dir (so
// relative resources resolve as they would for the real document), runs it
// through r and removes the file again. Removal errors are logged and
// otherwise ignored.
func ExecuteDocument(ctx context.Context, r PageRunner, dir, html string, log logger.Logger) ([]types.ErrorEvent, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf(".sketch-repair-%s.html", uuid.NewString()))
	if err := os.WriteFile(path, []byte(html), 0600); err != nil {
		// The document directory may be read-only; fall back to the system temp dir.
		path = filepath.Join(os.TempDir(), filepath.Base(path))
		if err := os.WriteFile(path, []byte(html), 0600); err != nil {
			return nil, types.NewAppError(types.ErrOracle, "failed to write temporary page", err)
		}
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove temporary page", logger.String("path", path), logger.Err(err))
		}
	}()

	events, err := r.Execute(ctx, path)
	if err != nil {
		return nil, err
	}
	log.Debug("page executed", logger.Int("events", len(events)))
	return events, nil
}

// RodRunner executes pages in a headless Chromium driven by go-rod. Every call
// launches its own browser and tears it down before returning.
type RodRunner struct {
	bin     string
	maxWait time.Duration
	settle  time.Duration
	log     logger.Logger
}

// NewRodRunner creates a runner from the [browser] configuration.
func NewRodRunner(cfg types.BrowserConfig, log logger.Logger) *RodRunner {
	if log == nil {
		log = logger.GetLogger()
	}
	maxWait := time.Duration(cfg.MaxWaitSeconds) * time.Second
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}
	return &RodRunner{
		bin:     cfg.Bin,
		maxWait: maxWait,
		settle:  time.Duration(cfg.SettleMillis) * time.Millisecond,
		log:     log,
	}
}

// eventCollector accumulates events from CDP callbacks, which run on rod's
// event goroutine.
type eventCollector struct {
	mu       sync.Mutex
	events   []types.ErrorEvent
	requests map[proto.NetworkRequestID]string
}

func (c *eventCollector) add(ev types.ErrorEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *eventCollector) snapshot() []types.ErrorEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.ErrorEvent(nil), c.events...)
}

// networkIdle is how long the page must go without a pending request to
// count as idle.
const networkIdle = 500 * time.Millisecond

// Execute loads path and collects uncaught exceptions, console errors and
// failed resource requests until the page has loaded, the network has gone
// idle and the settle delay has passed, bounded by the configured maximum
// wait.
func (r *RodRunner) Execute(ctx context.Context, path string) (events []types.ErrorEvent, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.maxWait)
	defer cancel()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	pageURL := (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()

	l := launcher.New().Headless(true).Context(ctx)
	if r.bin != "" {
		l = l.Bin(r.bin)
	}
	wsURL, err := l.Launch()
	if err != nil {
		return nil, types.NewAppError(types.ErrOracle, "failed to launch browser", err)
	}
	defer func() {
		l.Kill()
		l.Cleanup()
	}()

	browser := rod.New().ControlURL(wsURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, types.NewAppError(types.ErrOracle, "failed to connect to browser", err)
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			r.log.Debug("browser close failed", logger.Err(cerr))
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, types.NewAppError(types.ErrOracle, "failed to open page", err)
	}

	collector := &eventCollector{requests: make(map[proto.NetworkRequestID]string)}
	listenCtx, stopListening := context.WithCancel(ctx)
	wait := page.Context(listenCtx).EachEvent(
		func(e *proto.RuntimeExceptionThrown) {
			collector.add(exceptionEvent(e.ExceptionDetails))
		},
		func(e *proto.RuntimeConsoleAPICalled) {
			if e.Type != proto.RuntimeConsoleAPICalledTypeError {
				return
			}
			collector.add(types.ErrorEvent{
				Type:    types.EventConsoleError,
				Message: consoleText(e.Args),
				Stack:   formatStack(e.StackTrace),
			})
		},
		func(e *proto.NetworkRequestWillBeSent) {
			collector.mu.Lock()
			collector.requests[e.RequestID] = e.Request.URL
			collector.mu.Unlock()
		},
		func(e *proto.NetworkResponseReceived) {
			if e.Response != nil && e.Response.Status >= 400 {
				collector.add(types.ErrorEvent{
					Type:    types.EventRequestFailed,
					Message: fmt.Sprintf("HTTP %d", e.Response.Status),
					URL:     e.Response.URL,
				})
			}
		},
		func(e *proto.NetworkLoadingFailed) {
			collector.mu.Lock()
			u := collector.requests[e.RequestID]
			collector.mu.Unlock()
			if u == "" || e.Canceled {
				return
			}
			collector.add(types.ErrorEvent{
				Type:    types.EventRequestFailed,
				Message: e.ErrorText,
				URL:     u,
			})
		},
	)
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	defer func() {
		stopListening()
		<-done
	}()

	waitIdle := page.WaitRequestIdle(networkIdle, nil, nil, nil)
	if err := page.Navigate(pageURL); err != nil {
		return nil, types.NewAppError(types.ErrOracle, "failed to navigate", err)
	}
	if err := page.WaitLoad(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		r.log.Warn("page load wait failed", logger.Err(err))
	}
	waitIdle()

	select {
	case <-time.After(r.settle):
	case <-ctx.Done():
	}

	events = collector.snapshot()
	r.log.Debug("page events collected", logger.String("url", pageURL), logger.Int("events", len(events)))
	return events, nil
}

func exceptionEvent(d *proto.RuntimeExceptionDetails) types.ErrorEvent {
	ev := types.ErrorEvent{Type: types.EventPageError}
	if d == nil {
		return ev
	}
	ev.Message = d.Text
	if d.Exception != nil && d.Exception.Description != "" {
		desc := d.Exception.Description
		if i := strings.Index(desc, "\n"); i >= 0 {
			ev.Message = desc[:i]
			ev.Stack = desc
		} else {
			ev.Message = desc
		}
	}
	if st := formatStack(d.StackTrace); st != "" {
		ev.Stack = st
	} else if ev.Stack == "" && d.URL != "" {
		ev.Stack = fmt.Sprintf("    at (%s:%d:%d)", d.URL, d.LineNumber+1, d.ColumnNumber+1)
	}
	return ev
}

func consoleText(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if a.Type == proto.RuntimeRemoteObjectTypeString {
			parts = append(parts, a.Value.Str())
		} else if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}

// formatStack renders CDP call frames the way V8 prints stacks, with 1-based
// line and column numbers.
func formatStack(st *proto.RuntimeStackTrace) string {
	if st == nil || len(st.CallFrames) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, f := range st.CallFrames {
		name := f.FunctionName
		if name == "" {
			name = "<anonymous>"
		}
		sb.WriteString(fmt.Sprintf("    at %s (%s:%d:%d)\n", name, f.URL, f.LineNumber+1, f.ColumnNumber+1))
	}
	return strings.TrimRight(sb.String(), "\n")
}
