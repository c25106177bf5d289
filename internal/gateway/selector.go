package gateway

import (
	"fmt"

	"github.com/brunovalongo/fretepay-backend/pkg/enums"
	pkgerrors "github.com/brunovalongo/fretepay-backend/pkg/errors"
)

// Selector resolves the provider for a payment method. The decision table
// runs in order: a method only one registered provider can take is pinned
// to that provider; otherwise the configured default wins if it supports
// the method; otherwise the baseline. No match is a caller-visible error,
// never a silent fallback.
type Selector struct {
	clients  map[enums.GatewayKind]Client
	ordered  []Client
	def      enums.GatewayKind
	baseline enums.GatewayKind
}

// NewSelector builds a selector over the registered clients.
func NewSelector(def, baseline enums.GatewayKind, clients ...Client) (*Selector, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("at least one gateway client is required")
	}
	byKind := make(map[enums.GatewayKind]Client, len(clients))
	ordered := make([]Client, 0, len(clients))
	for _, client := range clients {
		if client == nil {
			continue
		}
		if _, dup := byKind[client.Kind()]; dup {
			return nil, fmt.Errorf("duplicate gateway client for kind %s", client.Kind())
		}
		byKind[client.Kind()] = client
		ordered = append(ordered, client)
	}
	if _, ok := byKind[baseline]; !ok {
		return nil, fmt.Errorf("baseline gateway %s is not registered", baseline)
	}
	return &Selector{clients: byKind, ordered: ordered, def: def, baseline: baseline}, nil
}

// Select returns the provider for the given payment method.
func (s *Selector) Select(method enums.PaymentMethod) (Client, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment method %q", method))
	}

	var supporting []Client
	for _, client := range s.ordered {
		if client.Supports(method) {
			supporting = append(supporting, client)
		}
	}
	if len(supporting) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("no gateway supports payment method %q", method))
	}
	if len(supporting) == 1 {
		return supporting[0], nil
	}

	if client, ok := s.clients[s.def]; ok && client.Supports(method) {
		return client, nil
	}

	baseline := s.clients[s.baseline]
	if !baseline.Supports(method) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("no gateway supports payment method %q", method))
	}
	return baseline, nil
}

// Get returns the registered client of the given kind, used by the webhook
// path where the provider is named in the URL.
func (s *Selector) Get(kind enums.GatewayKind) (Client, bool) {
	client, ok := s.clients[kind]
	return client, ok
}
