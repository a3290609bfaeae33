package llms

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const tokenEncoding = "cl100k_base"

// tokenCounter lazily loads the tiktoken encoding. The count is exact for
// OpenAI models and an estimate for the other services.
type tokenCounter struct {
	once sync.Once
	tkm  *tiktoken.Tiktoken
	err  error
}

func (tc *tokenCounter) count(text string) (int, error) {
	tc.once.Do(func() {
		tc.tkm, tc.err = tiktoken.GetEncoding(tokenEncoding)
	})
	if tc.err != nil {
		return 0, tc.err
	}
	return len(tc.tkm.Encode(text, nil, nil)), nil
}
