// Package provider decides which reasoning backend serves a request.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"netcraft/internal/llm"
	"netcraft/internal/models"

	"github.com/go-resty/resty/v2"
)

const Auto = "auto"

var (
	ErrNoProviderAvailable = errors.New("no provider available")
	ErrUnknownProvider     = errors.New("unknown provider")
)

var aliases = map[string]string{
	"google":    "gemini",
	"anthropic": "claude",
}

// DefaultOrder is the auto-selection preference: hosted providers first,
// the local one last.
var DefaultOrder = []string{"openai", "gemini", "claude", "openrouter", "ollama"}

// Normalize lowercases id and resolves aliases.
func Normalize(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if canonical, ok := aliases[id]; ok {
		return canonical
	}
	return id
}

// Spec configures one provider.
type Spec struct {
	ID      string
	Name    string
	Model   string
	APIKey  string
	BaseURL string
	Local   bool // reachable without a key; availability is probed
}

// ChatURL is the OpenAI-compatible endpoint for the provider.
func (s Spec) ChatURL() string {
	if s.Local {
		return strings.TrimRight(s.BaseURL, "/") + "/v1/"
	}
	return s.BaseURL
}

// Prober checks whether a local provider is up.
type Prober interface {
	Reachable(ctx context.Context, baseURL string) bool
}

// HTTPProber asks an Ollama-style server for its model list.
type HTTPProber struct {
	client *resty.Client
}

func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{client: resty.New().SetTimeout(timeout)}
}

func (p *HTTPProber) Reachable(ctx context.Context, baseURL string) bool {
	resp, err := p.client.R().SetContext(ctx).Get(strings.TrimRight(baseURL, "/") + "/api/tags")
	return err == nil && resp.IsSuccess()
}

// Builder constructs the backend for a provider.
type Builder func(Spec) llm.Backend

// Selector tracks configured providers and caches their backends. It is
// safe for concurrent use.
type Selector struct {
	specs  map[string]Spec
	order  []string
	prober Prober
	build  Builder

	mu    sync.RWMutex
	cache map[string]llm.Backend
}

func NewSelector(specs []Spec, order []string, prober Prober, build Builder) *Selector {
	s := &Selector{
		specs:  make(map[string]Spec, len(specs)),
		prober: prober,
		build:  build,
		cache:  make(map[string]llm.Backend),
	}
	for _, sp := range specs {
		sp.ID = Normalize(sp.ID)
		s.specs[sp.ID] = sp
	}
	if len(order) == 0 {
		order = DefaultOrder
	}
	seen := map[string]bool{}
	for _, id := range order {
		id = Normalize(id)
		if _, ok := s.specs[id]; ok && !seen[id] {
			seen[id] = true
			s.order = append(s.order, id)
		}
	}
	// configured providers missing from the order go last
	for _, sp := range specs {
		id := Normalize(sp.ID)
		if !seen[id] {
			seen[id] = true
			s.order = append(s.order, id)
		}
	}
	return s
}

func (s *Selector) available(ctx context.Context, sp Spec) bool {
	if sp.Local {
		return s.prober != nil && s.prober.Reachable(ctx, sp.BaseURL)
	}
	return sp.APIKey != ""
}

// AvailableProviders lists usable providers in preference order. Local
// providers are probed on every call.
func (s *Selector) AvailableProviders(ctx context.Context) []string {
	out := make([]string, 0, len(s.order))
	for _, id := range s.order {
		if s.available(ctx, s.specs[id]) {
			out = append(out, id)
		}
	}
	return out
}

// Resolve maps a requested id, or "auto", to an available provider.
func (s *Selector) Resolve(ctx context.Context, requested string) (string, error) {
	id := Normalize(requested)
	if id == "" || id == Auto {
		for _, cand := range s.order {
			if s.available(ctx, s.specs[cand]) {
				return cand, nil
			}
		}
		return "", fmt.Errorf("%w: configure an API key (OPENAI_API_KEY, GEMINI_API_KEY, ANTHROPIC_API_KEY, OPENROUTER_API_KEY) or start Ollama", ErrNoProviderAvailable)
	}
	sp, ok := s.specs[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, requested)
	}
	if !s.available(ctx, sp) {
		return "", fmt.Errorf("%w: %s is not configured or not reachable", ErrNoProviderAvailable, id)
	}
	return id, nil
}

// Backend resolves requested and returns its backend, building it once.
func (s *Selector) Backend(ctx context.Context, requested string) (llm.Backend, error) {
	id, err := s.Resolve(ctx, requested)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	b, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return b, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.cache[id]; ok {
		return b, nil
	}
	b = s.build(s.specs[id])
	s.cache[id] = b
	return b, nil
}

// Describe reports every configured provider for display.
func (s *Selector) Describe(ctx context.Context) []models.ProviderInfo {
	out := make([]models.ProviderInfo, 0, len(s.order))
	for _, id := range s.order {
		sp := s.specs[id]
		name := sp.Name
		if name == "" {
			name = id
		}
		out = append(out, models.ProviderInfo{
			ID:        id,
			Name:      name,
			Model:     sp.Model,
			Local:     sp.Local,
			Available: s.available(ctx, sp),
		})
	}
	return out
}
