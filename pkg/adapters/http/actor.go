package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aretw0/turnstile/pkg/domain"
)

// Request and response headers.
const (
	HeaderActorID        = "X-Actor-ID"
	HeaderActorRole      = "X-Actor-Role"
	HeaderExpectedStatus = "X-Expected-Status"
	HeaderApplied        = "X-Transition-Applied"
	HeaderCascadeFailed  = "X-Cascade-Failed"
)

// ErrNoActor is returned when a request carries no actor identity.
var ErrNoActor = errors.New("no actor identity on request")

// ActorResolver supplies the acting user of a request. Authentication
// happens upstream; the engine trusts what the resolver returns.
type ActorResolver interface {
	Resolve(r *http.Request) (string, domain.Role, error)
}

// HeaderActorResolver reads the actor from headers set by a trusted proxy.
type HeaderActorResolver struct{}

// Resolve implements ActorResolver.
func (HeaderActorResolver) Resolve(r *http.Request) (string, domain.Role, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderActorID))
	if id == "" {
		return "", "", ErrNoActor
	}
	return id, domain.Role(strings.TrimSpace(r.Header.Get(HeaderActorRole))), nil
}

// ActorResolverFunc adapts a function to ActorResolver.
type ActorResolverFunc func(r *http.Request) (string, domain.Role, error)

// Resolve calls f(r).
func (f ActorResolverFunc) Resolve(r *http.Request) (string, domain.Role, error) {
	return f(r)
}
