package usecase

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/SIRP996/cao-du-lieu-sub000/internal/infrastructure/llm"
)

// reply is one scripted answer of a fakeCompleter
type reply struct {
	text string
	err  error
}

// fakeCompleter plays back scripted replies; the last one repeats once the script runs out
type fakeCompleter struct {
	mu       sync.Mutex
	replies  []reply
	requests []llm.Request
}

func newFakeCompleter(replies ...reply) *fakeCompleter {
	return &fakeCompleter{replies: replies}
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if len(f.replies) == 0 {
		return "{}", nil
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return r.text, r.err
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeCompleter) lastRequest() llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// poolWith builds a real KeyPool where each credential is served by the given completer
func poolWith(clients map[string]*fakeCompleter, keys ...string) *llm.KeyPool {
	return llm.NewKeyPool(keys, func(key string) llm.Completer {
		return clients[key]
	}, zerolog.Nop())
}

// singleKeyPool serves every call from one completer
func singleKeyPool(c *fakeCompleter) *llm.KeyPool {
	const key = "test-key-0000001"
	return poolWith(map[string]*fakeCompleter{key: c}, key)
}
