package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-lazada/config"
)

// Transport issues a single request and returns the raw body. It never
// retries; a failed page is the fetch loop's concern.
type Transport interface {
	Send(ctx context.Context, req RequestDescriptor) (string, error)
}

const (
	ctxBody   = "body"
	ctxStatus = "status"
	ctxCaller = "caller"
)

// CollyTransport sends one synchronous request per page through a colly
// collector.
type CollyTransport struct {
	collector *colly.Collector
	metrics   *Metrics
}

// NewCollyTransport builds a transport configured from cfg.
func NewCollyTransport(cfg *config.Config, metrics *Metrics) *CollyTransport {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.RequestTimeout.Duration)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.RequestTimeout.Duration,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	t := &CollyTransport{collector: collector, metrics: metrics}
	t.configureHandlers()
	return t
}

// WithTransport swaps the HTTP round tripper, e.g. for tests.
func (t *CollyTransport) WithTransport(rt http.RoundTripper) {
	t.collector.WithTransport(rt)
}

func (t *CollyTransport) configureHandlers() {
	t.collector.OnRequest(func(r *colly.Request) {
		if caller, ok := r.Ctx.GetAny(ctxCaller).(context.Context); ok && caller.Err() != nil {
			r.Abort()
			return
		}
		r.Ctx.Put("start", time.Now())
		slog.Debug("page request", slog.String("url", r.URL.String()))
	})

	t.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxBody, string(r.Body))
		r.Ctx.Put(ctxStatus, r.StatusCode)
		t.observe(r)
	})

	t.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put(ctxStatus, r.StatusCode)
		t.observe(r)
	})
}

func (t *CollyTransport) observe(r *colly.Response) {
	if t.metrics == nil || r.Request == nil || r.Ctx == nil {
		return
	}
	if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
		t.metrics.ObserveDuration(time.Since(start))
	}
}

type sendResult struct {
	body string
	err  error
}

// Send implements Transport. Errors are classified into the typed errors in
// errors.go.
//
// Cancelling ctx makes Send return ctx.Err() at once. A request already on the
// wire is abandoned rather than torn down, and finishes in the background
// within the collector's request timeout.
func (t *CollyTransport) Send(ctx context.Context, req RequestDescriptor) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	done := make(chan sendResult, 1)
	go func() {
		body, err := t.send(ctx, req)
		done <- sendResult{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("request %s: %w", req.URL, ctx.Err())
	case res := <-done:
		if res.err == nil && ctx.Err() != nil {
			return "", fmt.Errorf("request %s: %w", req.URL, ctx.Err())
		}
		return res.body, res.err
	}
}

func (t *CollyTransport) send(ctx context.Context, req RequestDescriptor) (string, error) {
	cctx := colly.NewContext()
	cctx.Put(ctxCaller, ctx)
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	err := t.collector.Request(method, req.URL, nil, cctx, req.Headers.Clone())

	status, _ := cctx.GetAny(ctxStatus).(int)
	if err != nil {
		classified := classifyError(err, status)
		t.metrics.IncError(errorTypeLabel(classified))
		return "", fmt.Errorf("request %s: %w", req.URL, classified)
	}
	return cctx.Get(ctxBody), nil
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}
