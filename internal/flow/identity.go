package flow

import (
	"crypto/sha1"
	"fmt"

	"github.com/google/uuid"

	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
)

// sagaNamespace is the name-based hashing namespace for saga ids.
// Changing it changes every saga id and orphans all persisted streams.
var sagaNamespace = uuid.MustParse("bb5d0ffa-9a4c-4d7c-8fc2-0a7d2220ba45")

// SagaID derives the saga id for a flow name and identity key.
//
// The id is a SHA-1 name-based hash of "<flowName>-<key>" laid out with the
// version 4 marker and RFC 4122 variant, so it is formatted exactly like the
// random ids used everywhere else. Same inputs always yield the same id.
func SagaID(flowName, key string) string {
	return uuid.NewHash(sha1.New(), sagaNamespace, []byte(flowName+"-"+key), 4).String()
}

// ResolveID computes the saga id of def for ev.
// Fails with ErrCodeMissingIdentity when def has no identity function for
// the event, or the function returns an empty key or panics.
func ResolveID(def *Stateful, ev ir.DomainEvent) (string, error) {
	eventName := ev.FullName()

	identify, ok := def.Identity[eventName]
	if !ok || identify == nil {
		return "", newError(ErrCodeMissingIdentity, def.Name, eventName, "no identity function registered")
	}

	key, err := callIdentity(identify, ev)
	if err != nil {
		return "", newError(ErrCodeMissingIdentity, def.Name, eventName, "identity function panicked: %v", err)
	}
	if key == "" {
		return "", newError(ErrCodeMissingIdentity, def.Name, eventName, "identity function returned an empty key")
	}

	return SagaID(def.Name, key), nil
}

// callIdentity runs identify and reports a panic as an error.
func callIdentity(identify IdentityFunc, ev ir.DomainEvent) (key string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return identify(ev), nil
}

// IDGenerator generates ids for events and commands.
// Implemented by RandomIDs (production) and testutil.FixedIDs (tests).
type IDGenerator interface {
	NewID() string
}

// RandomIDs generates random (version 4) UUIDs.
//
// Thread-safety: RandomIDs is stateless and safe for concurrent use.
type RandomIDs struct{}

// NewID returns a new random UUID as a hyphenated string.
func (RandomIDs) NewID() string {
	return uuid.NewString()
}
