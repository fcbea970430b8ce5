// Package authz evaluates an explicit policy table before an operation
// executes: (operation, resource type) maps to a pure predicate over
// (principal, resource).
package authz

import (
	"fmt"

	"github.com/wadayano/wadayano-server/internal/auth"
)

type Resource struct {
	Type    string
	OwnerID string
}

type Decision struct {
	Allowed bool
	Reason  string // set when denied
}

func Allow() Decision            { return Decision{Allowed: true} }
func Deny(reason string) Decision { return Decision{Reason: reason} }

type Predicate func(p auth.Principal, res Resource) Decision

type policyKey struct {
	Op       string
	Resource string
}

var policy = map[policyKey]Predicate{
	{"attempt:view", "attempt"}:        ownerOrInstructor,
	{"attempt:answer", "attempt"}:      ownerOnly,
	{"attempt:confidences", "attempt"}: ownerOnly,
	{"attempt:complete", "attempt"}:    ownerOnly,
	{"consent:submit", "student"}:      ownerOnly,
}

// Authorize looks up the policy entry for the operation; an operation
// with no entry is denied, not defaulted.
func Authorize(op string, p auth.Principal, res Resource) Decision {
	pred, ok := policy[policyKey{Op: op, Resource: res.Type}]
	if !ok {
		return Deny(fmt.Sprintf("no policy for %s on %s", op, res.Type))
	}
	return pred(p, res)
}

func ownerOnly(p auth.Principal, res Resource) Decision {
	if p.Sub != "" && p.Sub == res.OwnerID {
		return Allow()
	}
	return Deny("not the owner")
}

func ownerOrInstructor(p auth.Principal, res Resource) Decision {
	if p.Role == "instructor" || p.Role == "admin" {
		return Allow()
	}
	return ownerOnly(p, res)
}
