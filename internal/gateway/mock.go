package gateway

import (
	"context"
	"fmt"
	"sync"
)

// MockVerifier serves configured results from memory, for development and tests
type MockVerifier struct {
	mu      sync.RWMutex
	results map[string]*TransactionResult
	errs    map[string]error
	calls   map[string]int
}

// NewMockVerifier creates a new mock verifier
func NewMockVerifier() *MockVerifier {
	return &MockVerifier{
		results: make(map[string]*TransactionResult),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

// SetResult registers the result returned for a reference
func (m *MockVerifier) SetResult(result *TransactionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.Reference] = result
	delete(m.errs, result.Reference)
}

// SetError makes Verify fail for a reference
func (m *MockVerifier) SetError(reference string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[reference] = err
}

// Calls returns how many times a reference was verified
func (m *MockVerifier) Calls(reference string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[reference]
}

// Verify returns the registered result. Unknown references report failed.
func (m *MockVerifier) Verify(ctx context.Context, reference string) (*TransactionResult, error) {
	if reference == "" {
		return nil, fmt.Errorf("reference is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[reference]++

	if err, ok := m.errs[reference]; ok {
		return nil, err
	}
	if r, ok := m.results[reference]; ok {
		cp := *r
		return &cp, nil
	}
	return &TransactionResult{Reference: reference, Status: StatusFailed}, nil
}

// Name returns the gateway name
func (m *MockVerifier) Name() string {
	return "mock"
}
