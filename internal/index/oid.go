package index

import (
	"errors"
	"math"
)

// ErrOIDExhausted is returned once every 32-bit OID has been handed out.
var ErrOIDExhausted = errors.New("oid counter exhausted")

// OIDAllocator hands out increasing OIDs. OIDs are a cosmetic alias for
// PostgreSQL clients and carry no meaning for identity or ordering.
type OIDAllocator struct {
	next uint32
}

// NewOIDAllocator returns an allocator whose first OID is first.
func NewOIDAllocator(first uint32) *OIDAllocator {
	return &OIDAllocator{next: first}
}

// Allocate returns the next OID.
func (a *OIDAllocator) Allocate() (uint32, error) {
	if a.next == math.MaxUint32 {
		return 0, ErrOIDExhausted
	}
	oid := a.next
	a.next++
	return oid, nil
}
