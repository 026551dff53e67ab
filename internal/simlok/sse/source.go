package sse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Source consumes an SSE stream and dispatches submission events to subscribers keyed
// by submission id. Subscribers only learn that something changed; the payload is never
// handed to them.
type Source struct {
	url        string
	token      string
	httpClient *http.Client
	retry      time.Duration
	logger     *zap.Logger

	mu        sync.Mutex
	nextID    int
	subs      map[string]map[int]func()
	listeners map[int]func(bool)
	connected bool
}

// SourceOption configures a Source.
type SourceOption func(*Source)

func WithBearerToken(token string) SourceOption {
	return func(s *Source) { s.token = token }
}

// WithRetry sets the delay between reconnect attempts.
func WithRetry(d time.Duration) SourceOption {
	return func(s *Source) {
		if d > 0 {
			s.retry = d
		}
	}
}

func WithStreamClient(hc *http.Client) SourceOption {
	return func(s *Source) { s.httpClient = hc }
}

func WithSourceLogger(l *zap.Logger) SourceOption {
	return func(s *Source) { s.logger = l }
}

// NewSource creates a Source for the stream at url. Nothing connects until Run.
func NewSource(url string, opts ...SourceOption) *Source {
	s := &Source{
		url:        url,
		httpClient: &http.Client{},
		retry:      3 * time.Second,
		logger:     zap.NewNop(),
		subs:       make(map[string]map[int]func()),
		listeners:  make(map[int]func(bool)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn for events of submissionID and returns the unsubscribe func.
func (s *Source) Subscribe(submissionID string, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	if s.subs[submissionID] == nil {
		s.subs[submissionID] = make(map[int]func())
	}
	s.subs[submissionID][id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[submissionID], id)
		if len(s.subs[submissionID]) == 0 {
			delete(s.subs, submissionID)
		}
	}
}

// Connected reports whether the stream is currently open.
func (s *Source) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// OnConnectionChange registers fn to be told about connect and disconnect.
func (s *Source) OnConnectionChange(fn func(bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Source) setConnected(v bool) {
	s.mu.Lock()
	if s.connected == v {
		s.mu.Unlock()
		return
	}
	s.connected = v
	fns := make([]func(bool), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// Run keeps the stream open, reconnecting after s.retry, until ctx is done.
func (s *Source) Run(ctx context.Context) error {
	for {
		err := s.stream(ctx)
		s.setConnected(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("push stream dropped, reconnecting", zap.Error(err), zap.Duration("retry", s.retry))
		t := time.NewTimer(s.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *Source) stream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("open stream: status %d", resp.StatusCode)
	}
	s.setConnected(true)

	var eventType string
	var data []string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				s.dispatch(eventType, strings.Join(data, "\n"))
			}
			eventType, data = "", nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("stream closed by server")
}

func (s *Source) dispatch(eventType, data string) {
	if eventType == "connected" {
		return
	}
	msg, err := DecodeMessage(data)
	if err != nil {
		s.logger.Warn("drop push message", zap.String("event", eventType), zap.Error(err))
		return
	}
	s.mu.Lock()
	fns := make([]func(), 0, len(s.subs[msg.SubmissionID]))
	for _, fn := range s.subs[msg.SubmissionID] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
