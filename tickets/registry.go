// Package tickets maps holder addresses to stable ticket indices.
//
// An index, once issued, is never reassigned; only its holder changes. An
// address holds at most one live ticket at a time.
package tickets

import (
	"fmt"
	"sync"

	apperrors "github.com/CytonicMC/Cyparty/errors"
	"github.com/ethereum/go-ethereum/common"
)

// Registry is the bidirectional holder <-> index mapping.
type Registry struct {
	mu        sync.RWMutex
	holders   []common.Address // holders[i] holds index i+1
	indexOf   map[common.Address]uint64
	approvals map[uint64]common.Address
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		indexOf:   make(map[common.Address]uint64),
		approvals: make(map[uint64]common.Address),
	}
}

// Issue allocates the next index to holder.
func (r *Registry) Issue(holder common.Address) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder == (common.Address{}) {
		return 0, apperrors.New(apperrors.CodeInvalidRequest, "holder address is required")
	}
	if index, ok := r.indexOf[holder]; ok {
		return 0, apperrors.WithMetadata(apperrors.CodeAlreadyRegistered,
			fmt.Sprintf("%s already holds ticket %d", holder.Hex(), index),
			map[string]string{"index": fmt.Sprint(index)})
	}
	r.holders = append(r.holders, holder)
	index := uint64(len(r.holders))
	r.indexOf[holder] = index
	return index, nil
}

// Revoke undoes the most recent Issue. It only exists so a ledger can roll
// back a registration whose deposit could not be collected.
func (r *Registry) Revoke(index uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index == 0 || index != uint64(len(r.holders)) {
		return
	}
	holder := r.holders[index-1]
	r.holders = r.holders[:index-1]
	delete(r.indexOf, holder)
	delete(r.approvals, index)
}

// Approve lets approved move index on the holder's behalf. Only the holder
// may approve. The zero address clears the approval.
func (r *Registry) Approve(caller common.Address, approved common.Address, index uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	holder, err := r.holderInternal(index)
	if err != nil {
		return err
	}
	if caller != holder {
		return apperrors.New(apperrors.CodeUnauthorized, fmt.Sprintf("%s does not hold ticket %d", caller.Hex(), index))
	}
	if approved == (common.Address{}) {
		delete(r.approvals, index)
		return nil
	}
	r.approvals[index] = approved
	return nil
}

// Approved returns the address approved for index, if any.
func (r *Registry) Approved(index uint64) (common.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.approvals[index]
	return addr, ok
}

// Transfer moves index from from to to. The caller must be the holder or
// the approved address; to must not already hold a ticket. The approval is
// cleared on success.
func (r *Registry) Transfer(caller, from, to common.Address, index uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	holder, err := r.holderInternal(index)
	if err != nil {
		return err
	}
	if holder != from {
		return apperrors.New(apperrors.CodeNotRegistered, fmt.Sprintf("ticket %d is not held by %s", index, from.Hex()))
	}
	if caller != holder && r.approvals[index] != caller {
		return apperrors.New(apperrors.CodeUnauthorized, fmt.Sprintf("%s may not move ticket %d", caller.Hex(), index))
	}
	if to == (common.Address{}) {
		return apperrors.New(apperrors.CodeInvalidRequest, "recipient address is required")
	}
	if existing, ok := r.indexOf[to]; ok {
		return apperrors.WithMetadata(apperrors.CodeHolderConflict,
			fmt.Sprintf("%s already holds ticket %d", to.Hex(), existing),
			map[string]string{"index": fmt.Sprint(existing)})
	}

	r.holders[index-1] = to
	delete(r.indexOf, from)
	r.indexOf[to] = index
	delete(r.approvals, index)
	return nil
}

// HolderOf returns the current holder of index.
func (r *Registry) HolderOf(index uint64) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.holderInternal(index)
}

// IndexOf returns the live ticket held by addr.
func (r *Registry) IndexOf(addr common.Address) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	index, ok := r.indexOf[addr]
	return index, ok
}

// Len returns the number of issued tickets.
func (r *Registry) Len() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.holders))
}

// Holders returns a copy of the holder list, position i holding index i+1.
func (r *Registry) Holders() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	holders := make([]common.Address, len(r.holders))
	copy(holders, r.holders)
	return holders
}

// Restore rebuilds the registry from a persisted holder list and approvals.
func (r *Registry) Restore(holders []common.Address, approvals map[uint64]common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	indexOf := make(map[common.Address]uint64, len(holders))
	for i, holder := range holders {
		if _, dup := indexOf[holder]; dup {
			return fmt.Errorf("holder %s appears twice", holder.Hex())
		}
		indexOf[holder] = uint64(i + 1)
	}
	r.holders = append([]common.Address(nil), holders...)
	r.indexOf = indexOf
	r.approvals = make(map[uint64]common.Address, len(approvals))
	for index, addr := range approvals {
		r.approvals[index] = addr
	}
	return nil
}

func (r *Registry) holderInternal(index uint64) (common.Address, error) {
	if index == 0 || index > uint64(len(r.holders)) {
		return common.Address{}, apperrors.New(apperrors.CodeNotRegistered, fmt.Sprintf("ticket %d was never issued", index))
	}
	return r.holders[index-1], nil
}
