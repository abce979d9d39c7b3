// Package access holds the single authorization check applied before every
// mutating operation on a site-owned resource.
package access

import "errors"

// ErrForbidden is returned when an actor may not mutate a resource.
var ErrForbidden = errors.New("not authorized")

// Policy decides whether actorID may mutate a resource owned by ownerID.
// An actorID of zero is an anonymous caller.
type Policy func(actorID, ownerID uint) bool

// OwnerOnly allows only the resource owner.
func OwnerOnly(actorID, ownerID uint) bool {
	return actorID != 0 && actorID == ownerID
}

// Authorize applies p, falling back to OwnerOnly when p is nil.
func (p Policy) Authorize(actorID, ownerID uint) error {
	check := p
	if check == nil {
		check = OwnerOnly
	}
	if !check(actorID, ownerID) {
		return ErrForbidden
	}
	return nil
}
