package parties

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/CytonicMC/Cyparty/assets"
	apperrors "github.com/CytonicMC/Cyparty/errors"
	"github.com/CytonicMC/Cyparty/events"
	"github.com/ethereum/go-ethereum/common"
)

// Clear sends the whole remaining balance to the owner once the cooling
// period is over. Unclaimed entitlements are forfeited.
func (p *Party) Clear(ctx context.Context, caller common.Address) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireOwner(caller, "clear"); err != nil {
		return nil, err
	}
	if p.state.Mode == ModeOpen {
		return nil, apperrors.New(apperrors.CodeNotEnded, "party has not ended")
	}
	if err := p.requireCooled(); err != nil {
		return nil, err
	}
	balance, err := p.transport.Balance(ctx)
	if err != nil {
		return nil, transferError(err, "read balance")
	}

	t := p.begin()
	if !p.state.Cleared {
		p.state.Cleared = true
		t.onRollback(func() { p.state.Cleared = false })
	}
	if err := p.transport.Push(ctx, assets.Transfer{To: caller, Amount: balance}); err != nil {
		t.rollback()
		return nil, transferError(err, "sweep balance")
	}
	t.emit(events.Record{Kind: events.KindClear, Actor: caller, Amount: new(big.Int).Set(balance)})
	t.commit(ctx)
	return balance, nil
}

// SweepResult describes one ClearAndSend call.
type SweepResult struct {
	Paid      []assets.Transfer `json:"paid"`
	Fees      *big.Int          `json:"fees"`
	OwnerCut  *big.Int          `json:"owner_cut"`
	Cursor    uint64            `json:"cursor"`
	Remaining uint64            `json:"remaining"`
}

// ClearAndSend force-pays up to limit attended, unpaid tickets after the
// cooling period, keeping FeeRate/1000 of each payout. The owner receives
// the fees of this call plus whatever the balance holds beyond the
// remaining entitlements. A limit of zero or less processes every ticket.
// Like Clear, it fails with CodeCoolingPeriodNotElapsed until EndedAt plus
// CoolingPeriod has passed.
func (p *Party) ClearAndSend(ctx context.Context, caller common.Address, limit int) (SweepResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireOwner(caller, "clear and send"); err != nil {
		return SweepResult{}, err
	}
	switch p.state.Mode {
	case ModeOpen:
		return SweepResult{}, apperrors.New(apperrors.CodeNotEnded, "party has not ended")
	case ModeCancelled:
		return SweepResult{}, apperrors.New(apperrors.CodeNotEligible, "cancelled parties are only swept with clear")
	}
	if err := p.requireCooled(); err != nil {
		return SweepResult{}, err
	}
	if p.state.Cleared {
		return SweepResult{}, apperrors.New(apperrors.CodeSweepExhausted, "the balance was already cleared")
	}

	payout := p.state.PayoutAmount
	fee := new(big.Int).Mul(payout, new(big.Int).SetUint64(p.cfg.FeeRate))
	fee.Div(fee, big.NewInt(FeeDenominator))
	net := new(big.Int).Sub(payout, fee)

	cursor := p.state.SweepCursor
	var due []uint64
	for cursor < p.state.Registered {
		if limit > 0 && len(due) == limit {
			break
		}
		cursor++
		if p.isSweepable(cursor) {
			due = append(due, cursor)
		}
	}
	// Step over trailing tickets that need nothing so an exhausted sweep is
	// visible from the cursor alone.
	for cursor < p.state.Registered && !p.isSweepable(cursor+1) {
		cursor++
	}
	if len(due) == 0 {
		return SweepResult{}, apperrors.New(apperrors.CodeSweepExhausted, "no attended tickets left to pay")
	}

	balance, err := p.transport.Balance(ctx)
	if err != nil {
		return SweepResult{}, transferError(err, "read balance")
	}

	t := p.begin()
	prevCursor := p.state.SweepCursor
	p.state.SweepCursor = cursor
	t.onRollback(func() { p.state.SweepCursor = prevCursor })

	transfers := make([]assets.Transfer, 0, len(due)+1)
	sent := new(big.Int)
	for _, index := range due {
		holder, err := p.tickets.HolderOf(index)
		if err != nil {
			t.rollback()
			return SweepResult{}, err
		}
		t.setPaid(index)
		transfers = append(transfers, assets.Transfer{To: holder, Amount: new(big.Int).Set(net)})
		sent.Add(sent, net)
	}

	outstanding := new(big.Int).Mul(payout, new(big.Int).SetUint64(p.unpaidAttendedLocked()))
	ownerCut := new(big.Int).Sub(balance, sent)
	ownerCut.Sub(ownerCut, outstanding)
	if ownerCut.Sign() < 0 {
		t.rollback()
		return SweepResult{}, transferError(fmt.Errorf("balance %s is below outstanding payouts", balance), "sweep")
	}
	paid := transfers
	transfers = append(transfers, assets.Transfer{To: caller, Amount: ownerCut})

	if err := p.transport.Push(ctx, transfers...); err != nil {
		t.rollback()
		return SweepResult{}, transferError(err, "force payout")
	}

	fees := new(big.Int).Mul(fee, big.NewInt(int64(len(due))))
	t.emit(events.Record{
		Kind:      events.KindClearAndSend,
		Actor:     caller,
		Index:     cursor,
		Amount:    new(big.Int).Set(ownerCut),
		Transfers: transfers,
		Detail:    fmt.Sprintf("fees %s", fees),
	})
	t.commit(ctx)

	return SweepResult{
		Paid:      paid,
		Fees:      fees,
		OwnerCut:  ownerCut,
		Cursor:    cursor,
		Remaining: p.unpaidAttendedLocked(),
	}, nil
}

func (p *Party) isSweepable(index uint64) bool {
	entry := p.entries[index-1]
	return entry.attended && !entry.paid
}

func (p *Party) unpaidAttendedLocked() uint64 {
	var n uint64
	for _, entry := range p.entries {
		if entry.attended && !entry.paid {
			n++
		}
	}
	return n
}

// SweepAvailableAt returns when Clear and ClearAndSend open up, or the zero
// time while the party is open.
func (p *Party) SweepAvailableAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Mode == ModeOpen {
		return time.Time{}
	}
	return p.state.EndedAt.Add(p.cfg.CoolingPeriod)
}

func (p *Party) requireCooled() error {
	availableAt := p.state.EndedAt.Add(p.cfg.CoolingPeriod)
	if now := p.clock.Now(); now.Before(availableAt) {
		return apperrors.WithMetadata(apperrors.CodeCoolingPeriodNotElapsed,
			fmt.Sprintf("cooling period ends at %s", availableAt.Format(time.RFC3339)),
			map[string]string{"available_at": availableAt.Format(time.RFC3339)})
	}
	return nil
}
