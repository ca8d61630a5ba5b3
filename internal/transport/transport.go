// Package transport opens the streamed chat connection. The session engine
// depends only on Transport and Stream; HTTP is the production implementation.
package transport

import (
	"context"
	"errors"
	"net/http"
)

// ErrLineTooLong is returned by Next for a line over the size limit. The line
// is discarded and the stream stays readable.
var ErrLineTooLong = errors.New("transport: line exceeds size limit")

type Transport interface {
	// Open sends body to target and returns once response bytes can be read.
	Open(ctx context.Context, target string, header http.Header, body []byte) (Stream, error)
}

type Stream interface {
	// Next returns the next line of the response body without its terminator,
	// or io.EOF once the body is exhausted. ErrLineTooLong skips one line and
	// is not fatal.
	Next() ([]byte, error)
	// Close releases the connection. It is safe to call more than once and from
	// another goroutine, in which case a blocked Next returns an error.
	Close() error
}
