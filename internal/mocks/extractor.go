package mocks

import (
	"context"
	"sync"

	"github.com/docuflow/docuflow-api/internal/domain"
	"github.com/docuflow/docuflow-api/internal/platform/extraction"
)

// FakeExtractor implements extraction.Extractor with a programmable
// response per call.
type FakeExtractor struct {
	mu       sync.Mutex
	calls    int
	Requests []extraction.Request

	// ExtractFn decides the outcome of a call; call is 1-based.
	ExtractFn func(call int, req extraction.Request) (*extraction.Result, error)
}

// Extract implements extraction.Extractor.
func (f *FakeExtractor) Extract(_ context.Context, req extraction.Request) (*extraction.Result, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.Requests = append(f.Requests, req)
	f.mu.Unlock()

	if f.ExtractFn != nil {
		return f.ExtractFn(call, req)
	}
	return &extraction.Result{Reference: "doc-ref"}, nil
}

// Calls returns how many times Extract was invoked.
func (f *FakeExtractor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeSender implements notify.Sender with a programmable response.
type FakeSender struct {
	mu     sync.Mutex
	Events []*domain.WebhookEvent

	SendFn func(call int, event *domain.WebhookEvent) (string, error)
}

// Send records the event and returns the programmed outcome.
func (f *FakeSender) Send(_ context.Context, event *domain.WebhookEvent) (string, error) {
	f.mu.Lock()
	f.Events = append(f.Events, event)
	call := len(f.Events)
	f.mu.Unlock()

	if f.SendFn != nil {
		return f.SendFn(call, event)
	}
	return "ok", nil
}

// Calls returns how many times Send was invoked.
func (f *FakeSender) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Events)
}
