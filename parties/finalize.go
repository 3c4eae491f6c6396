package parties

import (
	"context"
	"fmt"
	"math/big"

	"github.com/CytonicMC/Cyparty/attendance"
	apperrors "github.com/CytonicMC/Cyparty/errors"
	"github.com/CytonicMC/Cyparty/events"
	"github.com/ethereum/go-ethereum/common"
)

// Finalize ends the party with the attendance packed in words and fixes the
// pro-rata payout to floor(balance / attended). The owner or any admin may
// finalize.
func (p *Party) Finalize(ctx context.Context, caller common.Address, words []*big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireFinalizer(caller); err != nil {
		return err
	}
	set, err := attendance.Decode(words, p.state.Registered)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidBitmapIndex, "decode attendance", err)
	}
	return p.finalizeLocked(ctx, caller, set)
}

// FinalizeIndices is Finalize for a sparse list of attended ticket indices.
// Every index must lie in 1..Registered; duplicates count once.
func (p *Party) FinalizeIndices(ctx context.Context, caller common.Address, indices []uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireFinalizer(caller); err != nil {
		return err
	}
	set, err := attendance.FromIndices(indices, p.state.Registered)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidBitmapIndex, "validate attendance", err)
	}
	return p.finalizeLocked(ctx, caller, set)
}

func (p *Party) requireFinalizer(caller common.Address) error {
	if !p.auth.IsAdmin(caller) {
		return apperrors.New(apperrors.CodeUnauthorized, "only the owner or an admin can finalize")
	}
	return p.requireOpen("finalize")
}

func (p *Party) finalizeLocked(ctx context.Context, caller common.Address, set attendance.Set) error {
	balance, err := p.transport.Balance(ctx)
	if err != nil {
		return transferError(err, "read balance")
	}

	payout := new(big.Int)
	if set.Len() > 0 {
		payout.Div(balance, new(big.Int).SetUint64(uint64(set.Len())))
	}
	for _, index := range set {
		p.entries[index-1].attended = true
	}
	p.state.Attended = uint64(set.Len())
	p.state.PayoutAmount = payout
	p.state.Mode = ModeFinalized
	p.state.EndedAt = p.clock.Now()

	t := p.begin()
	t.emit(events.Record{
		Kind:   events.KindFinalize,
		Actor:  caller,
		Index:  p.state.Attended,
		Amount: new(big.Int).Set(payout),
		Detail: fmt.Sprintf("%d of %d attended", set.Len(), p.state.Registered),
	})
	t.commit(ctx)
	return nil
}

// Cancel ends the party without attendance; every ticket is refunded the
// deposit.
func (p *Party) Cancel(ctx context.Context, caller common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireOwner(caller, "cancel"); err != nil {
		return err
	}
	if err := p.requireOpen("cancel"); err != nil {
		return err
	}

	p.state.Mode = ModeCancelled
	p.state.EndedAt = p.clock.Now()
	p.state.PayoutAmount = new(big.Int).Set(p.cfg.Deposit)

	t := p.begin()
	t.emit(events.Record{Kind: events.KindCancel, Actor: caller, Amount: new(big.Int).Set(p.cfg.Deposit)})
	t.commit(ctx)
	return nil
}
