package exchange

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// Registry maps exchange ids to venue plugins.
type Registry struct {
	mu     sync.RWMutex
	venues map[string]Venue
}

// NewRegistry returns a registry holding venues.
func NewRegistry(venues ...Venue) *Registry {
	r := &Registry{venues: make(map[string]Venue, len(venues))}
	for _, v := range venues {
		r.Register(v)
	}
	return r
}

// Register adds or replaces a venue.
func (r *Registry) Register(v Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.venues[strings.ToLower(v.ID())] = v
}

// Lookup returns the venue for id or domain.ErrUnsupportedExchange.
func (r *Registry) Lookup(id string) (Venue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.venues[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedExchange, id)
	}
	return v, nil
}

// IDs lists registered exchange ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.venues))
	for id := range r.venues {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SimulatorFunc wraps a public-data client into a simulated trading client.
type SimulatorFunc func(v Venue, market Client, creds *domain.ResolvedCredentials) Client

// Factory creates exchange clients. Whether clients are live or simulated
// is fixed when the factory is built.
type Factory struct {
	registry  *Registry
	simulator SimulatorFunc
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithSimulator makes every client a simulated one backed by public market
// data from the real venue.
func WithSimulator(fn SimulatorFunc) FactoryOption {
	return func(f *Factory) { f.simulator = fn }
}

// NewFactory creates a Factory over registry.
func NewFactory(registry *Registry, opts ...FactoryOption) *Factory {
	f := &Factory{registry: registry}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Simulated reports whether the factory produces simulated clients.
func (f *Factory) Simulated() bool { return f.simulator != nil }

// Venue returns the plugin for exchangeID.
func (f *Factory) Venue(exchangeID string) (Venue, error) {
	return f.registry.Lookup(exchangeID)
}

// CreateClient returns a client for exchangeID. Unknown ids fail with
// domain.ErrUnsupportedExchange before anything touches the network.
func (f *Factory) CreateClient(exchangeID string, creds *domain.ResolvedCredentials) (Client, error) {
	v, err := f.registry.Lookup(exchangeID)
	if err != nil {
		return nil, err
	}
	if f.simulator != nil {
		market, err := v.NewClient(nil)
		if err != nil {
			return nil, fmt.Errorf("exchange: %s: %w", v.ID(), err)
		}
		return f.simulator(v, market, creds), nil
	}
	c, err := v.NewClient(creds)
	if err != nil {
		return nil, fmt.Errorf("exchange: %s: %w", v.ID(), err)
	}
	return c, nil
}

// NewLimiter builds the shared outbound limiter for a venue. Zero or
// negative rps means unlimited.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
