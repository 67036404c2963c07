package llm

import (
	"context"
	"fmt"
	"sync"
)

// FakeClient is a scriptable Client used by scout/planner/writer tests so
// the pipeline's control flow can be tested without a live API key.
type FakeClient struct {
	mu        sync.Mutex
	model     string
	responses []string
	calls     int
	err       error
	Requests  [][]Message
}

// NewFakeClient returns a Client that yields responses in order, repeating
// the last one once exhausted.
func NewFakeClient(model string, responses ...string) *FakeClient {
	return &FakeClient{model: model, responses: responses}
}

// WithError makes every subsequent Complete call return err.
func (f *FakeClient) WithError(err error) *FakeClient {
	f.err = err
	return f
}

func (f *FakeClient) Model() string { return f.model }

func (f *FakeClient) Complete(ctx context.Context, messages []Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, messages)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", fmt.Errorf("llm: fake client has no scripted responses")
	}
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return f.responses[idx], nil
}

// CallCount returns how many times Complete was invoked.
func (f *FakeClient) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
