package portfolio

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aristath/advisor/internal/domain"
	"github.com/rs/zerolog"
)

// Store is the persistence the registry writes through to
type Store interface {
	Save(p domain.Portfolio) error
	List() ([]domain.Portfolio, error)
	Delete(clientID string) error
}

type entry struct {
	mu        sync.RWMutex
	portfolio domain.Portfolio
	// set under mu once the entry has left the map
	removed bool
}

// Registry holds the live portfolio of every client. Each client has its own
// lock: reviews of different clients never contend, while an update to one
// client is serialised against its readers.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*entry
	store   Store
	log     zerolog.Logger
}

// NewRegistry creates a registry. store may be nil for an in-memory registry.
func NewRegistry(store Store, log zerolog.Logger) *Registry {
	return &Registry{
		clients: make(map[string]*entry),
		store:   store,
		log:     log.With().Str("component", "portfolio_registry").Logger(),
	}
}

// Load replaces the registry contents with everything in the store
func (r *Registry) Load() error {
	if r.store == nil {
		return nil
	}
	portfolios, err := r.store.List()
	if err != nil {
		return fmt.Errorf("failed to load portfolios: %w", err)
	}

	clients := make(map[string]*entry, len(portfolios))
	for _, p := range portfolios {
		clients[p.ClientID] = &entry{portfolio: p}
	}

	r.mu.Lock()
	r.clients = clients
	r.mu.Unlock()

	r.log.Info().Int("clients", len(clients)).Msg("Portfolios loaded")
	return nil
}

func (r *Registry) get(clientID string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.clients[clientID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrClientNotFound, clientID)
	}
	return e, nil
}

// Snapshot returns a deep copy of the client's portfolio
func (r *Registry) Snapshot(clientID string) (domain.Portfolio, error) {
	e, err := r.get(clientID)
	if err != nil {
		return domain.Portfolio{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.removed {
		return domain.Portfolio{}, fmt.Errorf("%w: %s", domain.ErrClientNotFound, clientID)
	}
	return e.portfolio.Clone(), nil
}

// Update applies fn to a copy of the client's portfolio under the client's
// write lock. The result is validated and persisted before it replaces the
// live portfolio; on any error the live portfolio is unchanged.
func (r *Registry) Update(clientID string, fn func(p *domain.Portfolio) error) (domain.Portfolio, error) {
	e, err := r.get(clientID)
	if err != nil {
		return domain.Portfolio{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return domain.Portfolio{}, fmt.Errorf("%w: %s", domain.ErrClientNotFound, clientID)
	}

	next := e.portfolio.Clone()
	if err := fn(&next); err != nil {
		return domain.Portfolio{}, err
	}
	next.ClientID = clientID
	if err := r.commit(next); err != nil {
		return domain.Portfolio{}, err
	}
	e.portfolio = next
	return next.Clone(), nil
}

// Upsert creates or replaces a client's portfolio
func (r *Registry) Upsert(p domain.Portfolio) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	e, ok := r.clients[p.ClientID]
	if !ok {
		e = &entry{}
		e.mu.Lock()
		r.clients[p.ClientID] = e
		r.mu.Unlock()
		defer e.mu.Unlock()

		if err := r.commit(p); err != nil {
			e.removed = true
			r.mu.Lock()
			delete(r.clients, p.ClientID)
			r.mu.Unlock()
			return err
		}
		e.portfolio = p.Clone()
		return nil
	}
	r.mu.Unlock()

	e.mu.Lock()
	if e.removed {
		// lost a race with a failed create or a delete; start over
		e.mu.Unlock()
		return r.Upsert(p)
	}
	defer e.mu.Unlock()
	if err := r.commit(p); err != nil {
		return err
	}
	e.portfolio = p.Clone()
	return nil
}

func (r *Registry) commit(p domain.Portfolio) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if r.store != nil {
		if err := r.store.Save(p); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a client
func (r *Registry) Delete(clientID string) error {
	e, err := r.get(clientID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return fmt.Errorf("%w: %s", domain.ErrClientNotFound, clientID)
	}

	if r.store != nil {
		if err := r.store.Delete(clientID); err != nil {
			return err
		}
	}
	e.removed = true
	r.mu.Lock()
	delete(r.clients, clientID)
	r.mu.Unlock()
	return nil
}

// ClientIDs returns every registered client id in sorted order
func (r *Registry) ClientIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered clients
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
