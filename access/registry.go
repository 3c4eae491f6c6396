// Package access holds the owner and admin set guarding privileged party and
// factory operations.
package access

import (
	"log"
	"sync"

	apperrors "github.com/CytonicMC/Cyparty/errors"
	"github.com/ethereum/go-ethereum/common"
)

// Change describes one committed mutation of a Registry.
type Change struct {
	Kind    ChangeKind
	Actor   common.Address
	Subject common.Address
}

type ChangeKind string

const (
	AdminGranted         ChangeKind = "AdminGranted"
	AdminRevoked         ChangeKind = "AdminRevoked"
	OwnershipTransferred ChangeKind = "OwnershipTransferred"
)

// Registry is an owner plus a flat set of admins. The owner always counts
// as an admin.
type Registry struct {
	mu       sync.Mutex
	owner    common.Address
	admins   map[common.Address]struct{}
	order    []common.Address
	onChange func(Change)
}

// NewRegistry creates a Registry owned by owner.
func NewRegistry(owner common.Address) (*Registry, error) {
	if owner == (common.Address{}) {
		return nil, apperrors.New(apperrors.CodeInvalidConfig, "owner address is required")
	}
	return &Registry{
		owner:  owner,
		admins: make(map[common.Address]struct{}),
	}, nil
}

// OnChange registers a callback invoked after every committed mutation.
func (r *Registry) OnChange(fn func(Change)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

func (r *Registry) Owner() common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner
}

func (r *Registry) IsAdmin(addr common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isAdminInternal(addr)
}

func (r *Registry) isAdminInternal(addr common.Address) bool {
	if addr == r.owner {
		return true
	}
	_, ok := r.admins[addr]
	return ok
}

// Grant adds every address in addrs to the admin set. Any admin may grant.
func (r *Registry) Grant(caller common.Address, addrs ...common.Address) error {
	changes, err := r.mutate(caller, func() []Change {
		var changes []Change
		for _, addr := range addrs {
			if addr == (common.Address{}) || addr == r.owner {
				continue
			}
			if _, ok := r.admins[addr]; ok {
				continue
			}
			r.admins[addr] = struct{}{}
			r.order = append(r.order, addr)
			changes = append(changes, Change{Kind: AdminGranted, Actor: caller, Subject: addr})
		}
		return changes
	})
	if err != nil {
		return err
	}
	r.notify(changes)
	return nil
}

// Revoke removes every address in addrs from the admin set. Any admin may
// revoke, including themselves. The owner cannot be revoked.
func (r *Registry) Revoke(caller common.Address, addrs ...common.Address) error {
	changes, err := r.mutate(caller, func() []Change {
		var changes []Change
		for _, addr := range addrs {
			if _, ok := r.admins[addr]; !ok {
				continue
			}
			delete(r.admins, addr)
			for i, a := range r.order {
				if a == addr {
					r.order = append(r.order[:i], r.order[i+1:]...)
					break
				}
			}
			changes = append(changes, Change{Kind: AdminRevoked, Actor: caller, Subject: addr})
		}
		return changes
	})
	if err != nil {
		return err
	}
	r.notify(changes)
	return nil
}

// TransferOwnership hands the registry to next. Only the owner may call it.
func (r *Registry) TransferOwnership(caller common.Address, next common.Address) error {
	r.mu.Lock()
	if caller != r.owner {
		r.mu.Unlock()
		return apperrors.New(apperrors.CodeUnauthorized, "only the owner can transfer ownership")
	}
	if next == (common.Address{}) {
		r.mu.Unlock()
		return apperrors.New(apperrors.CodeInvalidConfig, "new owner address is required")
	}
	r.owner = next
	r.mu.Unlock()

	log.Printf("Ownership transferred from %s to %s", caller.Hex(), next.Hex())
	r.notify([]Change{{Kind: OwnershipTransferred, Actor: caller, Subject: next}})
	return nil
}

// Admins returns the granted admins in grant order, excluding the owner.
func (r *Registry) Admins() []common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	admins := make([]common.Address, len(r.order))
	copy(admins, r.order)
	return admins
}

// Count returns the number of granted admins, excluding the owner.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Restore replaces the registry contents, used when loading persisted state.
func (r *Registry) Restore(owner common.Address, admins []common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owner = owner
	r.admins = make(map[common.Address]struct{}, len(admins))
	r.order = r.order[:0]
	for _, addr := range admins {
		if _, ok := r.admins[addr]; ok {
			continue
		}
		r.admins[addr] = struct{}{}
		r.order = append(r.order, addr)
	}
}

func (r *Registry) mutate(caller common.Address, fn func() []Change) ([]Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isAdminInternal(caller) {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "caller is not an admin")
	}
	return fn(), nil
}

func (r *Registry) notify(changes []Change) {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()
	if fn == nil {
		return
	}
	for _, c := range changes {
		fn(c)
	}
}
