// Package httpsource fetches fillable templates by URL.
package httpsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/singleflight"
)

var (
	ErrStatus   = errors.New("template source answered with an error status")
	ErrTooLarge = errors.New("template exceeds the size limit")
	ErrNotPDF   = errors.New("template is not a PDF")
)

const (
	DefaultTimeout  = 15 * time.Second
	DefaultMaxBytes = 20 << 20
)

type Options struct {
	Timeout  time.Duration
	MaxBytes int64
	// CacheTTL bounds how long fetched bytes are reused; zero keeps them
	// for the life of the process.
	CacheTTL time.Duration
	Client   *http.Client
}

type cached struct {
	data    []byte
	fetched time.Time
}

// Source fetches http(s) and file:// templates, caching by URL. Concurrent
// fetches of one URL share a single request.
type Source struct {
	client  *http.Client
	timeout time.Duration
	max     int64
	ttl     time.Duration
	log     *slog.Logger
	now     func() time.Time

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]cached
}

func New(opts Options, log *slog.Logger) *Source {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Source{
		client:  client,
		timeout: opts.Timeout,
		max:     opts.MaxBytes,
		ttl:     opts.CacheTTL,
		log:     log,
		now:     time.Now,
		cache:   map[string]cached{},
	}
}

// Fetch returns the template bytes at rawURL. A caller that gives up
// stops waiting, but the shared request keeps running for the others.
func (s *Source) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if data, ok := s.lookup(rawURL); ok {
		return data, nil
	}
	ch := s.group.DoChan(rawURL, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		data, err := s.fetch(fctx, rawURL)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[rawURL] = cached{data: data, fetched: s.now()}
		s.mu.Unlock()
		return data, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("get %s: %w", rawURL, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.log.DebugContext(ctx, "template fetch shared", "url", rawURL)
		}
		return res.Val.([]byte), nil
	}
}

// Forget drops url from the cache.
func (s *Source) Forget(rawURL string) {
	s.mu.Lock()
	delete(s.cache, rawURL)
	s.mu.Unlock()
}

func (s *Source) lookup(rawURL string) ([]byte, bool) {
	s.mu.RLock()
	c, ok := s.cache[rawURL]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.ttl > 0 && s.now().Sub(c.fetched) > s.ttl {
		s.Forget(rawURL)
		return nil, false
	}
	return c.data, true
}

func (s *Source) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse template url: %w", err)
	}

	var body io.ReadCloser
	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", rawURL, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %s %s", ErrStatus, rawURL, resp.Status)
		}
		body = resp.Body
	case "file":
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, fmt.Errorf("open template: %w", err)
		}
		body = f
	default:
		return nil, fmt.Errorf("unsupported template url scheme %q", u.Scheme)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, s.max+1))
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	if int64(len(data)) > s.max {
		return nil, fmt.Errorf("%w: %s over %d bytes", ErrTooLarge, rawURL, s.max)
	}
	if mt := mimetype.Detect(data); !mt.Is("application/pdf") {
		return nil, fmt.Errorf("%w: %s looks like %s", ErrNotPDF, rawURL, mt.String())
	}
	s.log.InfoContext(ctx, "template fetched", "url", rawURL, "bytes", len(data))
	return data, nil
}
