package llm

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/SIRP996/cao-du-lieu-sub000/internal/domain"
)

// minKeyLength rejects obvious typos and placeholder values
const minKeyLength = 10

// ClientFactory builds a Completer bound to one credential
type ClientFactory func(apiKey string) Completer

// KeyPool owns the credential list and the rotation pointer.
// User-configured credentials take priority over the defaults when non-empty.
type KeyPool struct {
	mu       sync.Mutex
	defaults []string
	override []string
	current  int
	factory  ClientFactory
	clients  map[string]Completer
	log      zerolog.Logger
}

// NewKeyPool creates a pool with the default (environment-provided) credentials
func NewKeyPool(defaults []string, factory ClientFactory, logger zerolog.Logger) *KeyPool {
	return &KeyPool{
		defaults: dedupeKeys(defaults),
		factory:  factory,
		clients:  make(map[string]Completer),
		log:      logger,
	}
}

// ParseKeys splits a user-supplied credential string on commas and newlines.
// Entries of minKeyLength characters or fewer are dropped and duplicates are removed.
func ParseKeys(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	return dedupeKeys(parts)
}

func dedupeKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if len(k) <= minKeyLength || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// SetOverride replaces the user-configured credentials and resets the pointer.
// It returns the number of accepted credentials.
func (p *KeyPool) SetOverride(raw string) int {
	keys := ParseKeys(raw)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.override = keys
	p.current = 0
	p.log.Info().Int("accepted", len(keys)).Int("active", len(p.activeLocked())).Msg("credentials updated")
	return len(keys)
}

// Len returns the number of active credentials
func (p *KeyPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.activeLocked())
}

// CurrentClient returns a client bound to the credential at the rotation pointer
func (p *KeyPool) CurrentClient() (Completer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := p.activeLocked()
	if len(keys) == 0 {
		return nil, domain.ErrMissingAPIKey
	}
	key := keys[p.current%len(keys)]

	client, ok := p.clients[key]
	if !ok {
		client = p.factory(key)
		p.clients[key] = client
	}
	return client, nil
}

// Rotate advances the pointer and reports whether another credential was available
func (p *KeyPool) Rotate() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := p.activeLocked()
	if len(keys) <= 1 {
		return false
	}
	p.current = (p.current + 1) % len(keys)
	p.log.Info().Str("credential", MaskKey(keys[p.current])).Int("index", p.current).Msg("rotated credential")
	return true
}

// CurrentMasked returns the masked active credential, or "" when none is configured
func (p *KeyPool) CurrentMasked() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := p.activeLocked()
	if len(keys) == 0 {
		return ""
	}
	return MaskKey(keys[p.current%len(keys)])
}

func (p *KeyPool) activeLocked() []string {
	if len(p.override) > 0 {
		return p.override
	}
	return p.defaults
}
