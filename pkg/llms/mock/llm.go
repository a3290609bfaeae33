package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/rxevidence/rxevidence/pkg/models"
)

var _ models.LLM = &LLM{}

// Call records a single request made to the LLM.
type Call struct {
	System string
	Prompt string
}

// LLM returns canned responses. CallFunc takes precedence; otherwise Responses
// are returned in order and the last one repeats. With neither set the prompt
// is echoed back.
type LLM struct {
	CallFunc  func(ctx context.Context, system, prompt string) (string, error)
	Responses []string

	mu    sync.Mutex
	calls []Call
}

func NewLLM(responses ...string) *LLM {
	return &LLM{Responses: responses}
}

func (m *LLM) Call(ctx context.Context, system, prompt string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{System: system, Prompt: prompt})
	n := len(m.calls)
	m.mu.Unlock()

	if m.CallFunc != nil {
		return m.CallFunc(ctx, system, prompt)
	}
	if len(m.Responses) == 0 {
		return prompt, nil
	}
	return m.Responses[min(n, len(m.Responses))-1], nil
}

func (m *LLM) GetTokenCount(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

// Calls returns a copy of the recorded calls.
func (m *LLM) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}
