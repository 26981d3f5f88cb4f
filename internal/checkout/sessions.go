package checkout

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/dojo-shop/internal/cart"
)

// Sessions runs checkouts for cart sessions. Only submissions still waiting on
// the payment service are tracked; every other submit starts a fresh flow.
type Sessions struct {
	mu       sync.Mutex
	inFlight map[string]*Orchestrator
	carts    *cart.Registry
	payment  PaymentClient
	settings Settings
}

func NewSessions(carts *cart.Registry, payment PaymentClient, settings Settings) *Sessions {
	return &Sessions{
		inFlight: make(map[string]*Orchestrator),
		carts:    carts,
		payment:  payment,
		settings: settings,
	}
}

// Submit checks out the session's cart. A second submit for the same session
// while the first is in flight gets ErrCheckoutInProgress.
func (s *Sessions) Submit(ctx context.Context, sessionID string, input Input) (string, error) {
	store := s.carts.Store(ctx, sessionID)

	s.mu.Lock()
	if _, busy := s.inFlight[sessionID]; busy {
		s.mu.Unlock()
		log.Warn().Str("session_id", sessionID).Msg("checkout: submission already in flight")
		return "", ErrCheckoutInProgress
	}
	flow := NewOrchestrator(store, s.payment, s.settings)
	s.inFlight[sessionID] = flow
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inFlight, sessionID)
		s.mu.Unlock()
	}()

	return flow.Submit(ctx, input)
}

// InFlight is the number of checkouts currently waiting on the payment service.
func (s *Sessions) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.inFlight)
}
