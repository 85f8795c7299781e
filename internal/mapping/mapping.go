// Package mapping implements the consistency cache that guarantees
// repeatable substitutions across related records: the first caller to
// need a replacement for a value generates it, every later caller — for
// the same value kind, original value and consistency scope — observes
// exactly that value.
package mapping

import (
	"context"
	"fmt"
)

// Kind is the kind of value a mapping entry replaces.
type Kind string

const (
	KindUID      Kind = "UID"
	KindDateTime Kind = "DATETIME"
	KindText     Kind = "TEXT"
)

// Scope is the granularity at which a replacement must remain stable.
type Scope string

const (
	ScopeAlways  Scope = "always"
	ScopePatient Scope = "patient"
	ScopeStudy   Scope = "study"
	ScopeSeries  Scope = "series"
)

// Key identifies one mapping entry. The four fields form the composite
// primary key; a given key always yields the same replacement for the
// lifetime of the store.
type Key struct {
	Kind       Kind
	Original   string
	Scope      Scope
	ScopeValue string
}

// NewKey builds a validated key. Scoped keys require the scope identifier
// of the record (PatientID, StudyInstanceUID, ...); an empty one would
// silently merge unrelated records into one scope.
func NewKey(kind Kind, original string, scope Scope, scopeValue string) (Key, error) {
	if scope == ScopeAlways {
		scopeValue = string(ScopeAlways)
	} else if scopeValue == "" {
		return Key{}, fmt.Errorf("mapping scope %q requires a non-empty scope value", scope)
	}
	return Key{Kind: kind, Original: original, Scope: scope, ScopeValue: scopeValue}, nil
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.Kind, k.Scope, k.ScopeValue, k.Original)
}

// Generator produces a fresh replacement value. It is only consulted when
// the key has no committed value yet; a losing racer's draw is discarded.
type Generator func() (string, error)

// Store is the consistency cache contract: at most one generated value
// per key, even under concurrent callers. Conflicts are resolved
// internally and never surface as errors.
type Store interface {
	GetOrCreate(ctx context.Context, key Key, gen Generator) (string, error)
}
