package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bz888/modeler/internal/apperr"
	"github.com/bz888/modeler/internal/logger"
	"github.com/cenkalti/backoff/v4"
)

const (
	initialLineBuffer = 64 * 1024
	maxLineSize       = 1024 * 1024
)

type Config struct {
	ConnectTimeout        time.Duration
	ResponseHeaderTimeout time.Duration
	// MaxRetries bounds extra attempts to open the stream. Zero disables retry.
	// A stream is never retried once response bytes have been consumed.
	MaxRetries           int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	// Client replaces the default client built from the timeouts above.
	Client *http.Client
}

type HTTP struct {
	client *http.Client
	cfg    Config
	log    *logger.Logger
}

func NewHTTP(cfg Config) *HTTP {
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 500 * time.Millisecond
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = 10 * time.Second
	}

	client := cfg.Client
	if client == nil {
		dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.DialContext = dialer.DialContext
		tr.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout
		client = &http.Client{Transport: tr}
	}

	return &HTTP{
		client: client,
		cfg:    cfg,
		log:    logger.NewLogger("transport"),
	}
}

func (h *HTTP) Open(ctx context.Context, target string, header http.Header, body []byte) (Stream, error) {
	var resp *http.Response

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(apperr.Configuration("build request", err))
		}
		for k, v := range header {
			req.Header[k] = append([]string(nil), v...)
		}

		r, err := h.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(apperr.Transport("open stream", err))
			}
			return apperr.Transport("open stream", err)
		}

		if r.StatusCode < 200 || r.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(r.Body, 2048))
			r.Body.Close()
			err := apperr.Transport(fmt.Sprintf("unexpected status %d: %s", r.StatusCode, strings.TrimSpace(string(snippet))), nil)
			if retryableStatus(r.StatusCode) {
				return err
			}
			return backoff.Permanent(err)
		}

		resp = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		h.log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Str("target", target).Msg("retrying stream open")
	}

	if err := backoff.RetryNotify(op, h.retryPolicy(ctx), notify); err != nil {
		if apperr.KindOf(err) == "" {
			err = apperr.Transport("open stream", err)
		}
		return nil, err
	}

	h.log.Debug().Str("target", target).Int("status", resp.StatusCode).Int("attempts", attempt).Msg("stream opened")
	return newHTTPStream(resp.Body), nil
}

func (h *HTTP) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.cfg.RetryInitialInterval
	b.MaxInterval = h.cfg.RetryMaxInterval
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()

	retries := h.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

type httpStream struct {
	body   io.ReadCloser
	reader *bufio.Reader

	once     sync.Once
	closeErr error
}

func newHTTPStream(body io.ReadCloser) *httpStream {
	return &httpStream{body: body, reader: bufio.NewReaderSize(body, initialLineBuffer)}
}

func (s *httpStream) Next() ([]byte, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := s.reader.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxLineSize {
				tooLong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == nil:
		case errors.Is(err, io.EOF):
			if !tooLong && len(line) == 0 {
				return nil, io.EOF
			}
		default:
			return nil, apperr.Transport("read stream", err)
		}

		if tooLong {
			return nil, ErrLineTooLong
		}
		line = bytes.TrimSuffix(line, []byte("\n"))
		return bytes.TrimSuffix(line, []byte("\r")), nil
	}
}

func (s *httpStream) Close() error {
	s.once.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
