// Package scan produces decoded QR payloads. A Source yields at most one code
// per scan attempt; the payment session only sees the resulting string.
package scan

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrNoCode is returned when a scan attempt ends without a usable code.
var ErrNoCode = errors.New("scan: no code decoded")

// Source is one scan attempt. Start begins capturing and returns a channel
// that receives at most one code and is then closed. Stop releases the
// capture and may be called more than once.
type Source interface {
	Start(ctx context.Context) (<-chan string, error)
	Stop()
}

// Await runs src until it yields a code, finishes without one, or ctx is
// done. Blank codes count as no code.
func Await(ctx context.Context, src Source) (string, error) {
	ch, err := src.Start(ctx)
	if err != nil {
		return "", err
	}
	defer src.Stop()

	select {
	case code, ok := <-ch:
		code = strings.TrimSpace(code)
		if !ok || code == "" {
			return "", ErrNoCode
		}
		return code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// LineSource takes the next non-blank line of a reader as the scanned code.
// It covers manual entry and piped input, and can be stopped and started
// again for each attempt. A line read after its attempt stopped is kept for
// the next one.
type LineSource struct {
	readMu sync.Mutex // held while a line is being read
	r      *bufio.Reader
	held   string

	mu   sync.Mutex
	done chan struct{}
}

// NewLineSource reads from r. When r is already a *bufio.Reader it is used
// directly, so the caller can keep reading from it between attempts.
func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{r: bufio.NewReader(r)}
}

func (s *LineSource) Start(ctx context.Context) (<-chan string, error) {
	done := make(chan struct{})
	s.mu.Lock()
	s.done = done
	s.mu.Unlock()

	out := make(chan string)
	go func() {
		defer close(out)
		s.readMu.Lock()
		defer s.readMu.Unlock()
		line, ok := s.next()
		if !ok {
			return
		}
		select {
		case out <- line:
		case <-done:
			s.held = line
		case <-ctx.Done():
			s.held = line
		}
	}()
	return out, nil
}

func (s *LineSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
}

// next returns the held line or reads until a non-blank line or the end of
// input.
func (s *LineSource) next() (string, bool) {
	if s.held != "" {
		line := s.held
		s.held = ""
		return line, true
	}
	for {
		raw, err := s.r.ReadString('\n')
		if line := strings.TrimSpace(raw); line != "" {
			return line, true
		}
		if err != nil {
			return "", false
		}
	}
}
