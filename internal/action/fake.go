package action

import (
	"context"
	"sync"
)

// FakeStarter is a test double that records every start request.
type FakeStarter struct {
	mu sync.Mutex

	// Started holds targets in the order they were requested.
	Started []string

	// StartError, if set, is returned by StartUnit.
	StartError error
}

func (f *FakeStarter) StartUnit(_ context.Context, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Started = append(f.Started, target)
	return f.StartError
}

// Calls returns a copy of Started.
func (f *FakeStarter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Started...)
}

// Reset clears recorded calls.
func (f *FakeStarter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Started = nil
	f.StartError = nil
}
