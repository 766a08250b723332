package connector

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// Connector is the per-brokerage implementation of order execution and
// credential testing. ExecuteTrade looks up the owner's credentials itself:
// a missing credential record is a terminal failed result, not an error.
type Connector interface {
	// Name returns the broker identifier
	Name() string

	// ExecuteTrade submits the primary order and, when the alert carries a
	// stop-loss or take-profit spec and the primary order fills, submits the
	// dependent orders. A dependent-order failure is surfaced in the result
	// details; the primary fill remains the authoritative success signal.
	ExecuteTrade(ctx context.Context, ownerID string, alert *NormalizedAlert) (*ExecutionResult, error)

	// TestConnection performs a lightweight read-only call against the
	// brokerage and never mutates brokerage state.
	TestConnection(ctx context.Context, creds *Credentials) (*TestResult, error)
}

// CredentialSource resolves brokerage credentials for an owner. The second
// return value reports whether credentials were found at all.
type CredentialSource interface {
	Get(ctx context.Context, ownerID, broker string) (*Credentials, bool, error)
}

// Deps carries the dependencies a connector receives at construction.
// Connectors hold no global state.
type Deps struct {
	Credentials CredentialSource
	Log         *logrus.Logger
	BaseURL     string
}

// Factory is a factory function type for creating connectors
type Factory func(deps Deps) Connector

// Registry holds all registered connector factories
var Registry = make(map[string]Factory)

// Register registers a connector factory under a broker identifier.
func Register(name string, factory Factory) {
	Registry[strings.ToLower(name)] = factory
}

// Create creates a new connector instance by broker identifier. Lookup is
// case-insensitive; an unrecognized identifier is a configuration error.
func Create(name string, deps Deps) (Connector, error) {
	factory, exists := Registry[strings.ToLower(name)]
	if !exists {
		return nil, ErrUnsupportedBroker
	}
	return factory(deps), nil
}

// Supported returns a list of all registered broker identifiers.
func Supported() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	return names
}
