// Package events carries the records a party ledger emits for outside
// consumers: notifications, audit journals and metrics.
package events

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/CytonicMC/Cyparty/assets"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type Kind string

const (
	KindNewParty               Kind = "NewParty"
	KindRegister               Kind = "Register"
	KindTransfer               Kind = "Transfer"
	KindApprove                Kind = "Approve"
	KindFinalize               Kind = "Finalize"
	KindCancel                 Kind = "Cancel"
	KindWithdraw               Kind = "Withdraw"
	KindSendAndWithdraw        Kind = "SendAndWithdraw"
	KindClear                  Kind = "Clear"
	KindClearAndSend           Kind = "ClearAndSend"
	KindAdminGranted           Kind = "AdminGranted"
	KindAdminRevoked           Kind = "AdminRevoked"
	KindOwnershipTransferred   Kind = "OwnershipTransferred"
	KindUpdateParticipantLimit Kind = "UpdateParticipantLimit"
	KindChangeName             Kind = "ChangeName"
	KindChangeDeposit          Kind = "ChangeDeposit"
	KindPause                  Kind = "Pause"
	KindUnpause                Kind = "Unpause"
	KindFeeChange              Kind = "FeeChange"
	KindBaseTokenURIChange     Kind = "BaseTokenURIChange"
)

// Record is one emitted ledger record. PartyID is the zero UUID for records
// about the factory itself.
type Record struct {
	Kind      Kind              `json:"kind"`
	PartyID   uuid.UUID         `json:"party_id"`
	Actor     common.Address    `json:"actor"`
	Subject   *common.Address   `json:"subject,omitempty"`
	Index     uint64            `json:"index,omitempty"`
	Amount    *big.Int          `json:"amount,omitempty"`
	Transfers []assets.Transfer `json:"transfers,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	At        time.Time         `json:"at"`
}

// Publisher delivers records somewhere.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, rec Record) error

func (f PublisherFunc) Publish(ctx context.Context, rec Record) error { return f(ctx, rec) }

// Fanout publishes to every publisher and returns the first error.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, rec Record) error {
	var first error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Discard drops every record.
var Discard Publisher = PublisherFunc(func(context.Context, Record) error { return nil })

// Recorder keeps records in memory.
type Recorder struct {
	mu      sync.Mutex
	records []Record
}

func (r *Recorder) Publish(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

// Records returns every record seen so far.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Of returns the records of the given kind.
func (r *Recorder) Of(kind Kind) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

// AddressPtr is a helper for filling Record.Subject.
func AddressPtr(addr common.Address) *common.Address {
	return &addr
}
