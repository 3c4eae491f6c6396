package parties

import (
	"context"
	"fmt"
	"math/big"

	"github.com/CytonicMC/Cyparty/assets"
	apperrors "github.com/CytonicMC/Cyparty/errors"
	"github.com/CytonicMC/Cyparty/events"
	"github.com/ethereum/go-ethereum/common"
)

// Withdraw pays caller's full entitlement to caller.
func (p *Party) Withdraw(ctx context.Context, caller common.Address) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	index, err := p.eligible(caller)
	if err != nil {
		return nil, err
	}

	t := p.begin()
	t.setPaid(index)
	payout := new(big.Int).Set(p.state.PayoutAmount)
	if err := p.transport.Push(ctx, assets.Transfer{To: caller, Amount: payout}); err != nil {
		t.rollback()
		return nil, transferError(err, "pay out")
	}
	t.emit(events.Record{Kind: events.KindWithdraw, Actor: caller, Index: index, Amount: new(big.Int).Set(payout)})
	t.commit(ctx)
	return payout, nil
}

// SendAndWithdraw splits caller's entitlement: amounts[i] goes to
// recipients[i] and the remainder to caller. Empty slices behave as
// Withdraw.
func (p *Party) SendAndWithdraw(ctx context.Context, caller common.Address, recipients []common.Address, amounts []*big.Int) ([]assets.Transfer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	index, err := p.eligible(caller)
	if err != nil {
		return nil, err
	}
	if len(recipients) != len(amounts) {
		return nil, apperrors.New(apperrors.CodeSplitMismatch,
			fmt.Sprintf("%d recipients but %d amounts", len(recipients), len(amounts)))
	}

	transfers := make([]assets.Transfer, 0, len(recipients)+1)
	sent := new(big.Int)
	for i, recipient := range recipients {
		amount := amounts[i]
		if amount == nil || amount.Sign() < 0 {
			return nil, apperrors.New(apperrors.CodeSplitMismatch, fmt.Sprintf("amount %d must not be negative", i))
		}
		if recipient == (common.Address{}) {
			return nil, apperrors.New(apperrors.CodeInvalidRequest, fmt.Sprintf("recipient %d is the zero address", i))
		}
		sent.Add(sent, amount)
		transfers = append(transfers, assets.Transfer{To: recipient, Amount: new(big.Int).Set(amount)})
	}
	if sent.Cmp(p.state.PayoutAmount) > 0 {
		return nil, apperrors.WithMetadata(apperrors.CodeSplitMismatch,
			fmt.Sprintf("split of %s exceeds payout %s", sent, p.state.PayoutAmount),
			map[string]string{"payout": p.state.PayoutAmount.String()})
	}
	transfers = append(transfers, assets.Transfer{To: caller, Amount: new(big.Int).Sub(p.state.PayoutAmount, sent)})

	t := p.begin()
	t.setPaid(index)
	if err := p.transport.Push(ctx, transfers...); err != nil {
		t.rollback()
		return nil, transferError(err, "pay out split")
	}
	t.emit(events.Record{
		Kind:      events.KindSendAndWithdraw,
		Actor:     caller,
		Index:     index,
		Amount:    new(big.Int).Set(p.state.PayoutAmount),
		Transfers: transfers,
	})
	t.commit(ctx)
	return transfers, nil
}

// eligible returns caller's index if caller may settle it now.
func (p *Party) eligible(caller common.Address) (uint64, error) {
	index, ok := p.tickets.IndexOf(caller)
	if !ok {
		return 0, apperrors.New(apperrors.CodeNotRegistered, fmt.Sprintf("%s holds no ticket", caller.Hex()))
	}
	if p.state.Mode == ModeOpen {
		return 0, apperrors.New(apperrors.CodeNotEnded, "party has not ended")
	}
	entry := p.entries[index-1]
	if entry.paid {
		return 0, apperrors.WithMetadata(apperrors.CodeAlreadyPaid,
			fmt.Sprintf("ticket %d was already paid", index),
			map[string]string{"index": fmt.Sprint(index)})
	}
	if p.state.Mode == ModeFinalized && !entry.attended {
		return 0, apperrors.WithMetadata(apperrors.CodeNotEligible,
			fmt.Sprintf("ticket %d did not attend", index),
			map[string]string{"index": fmt.Sprint(index)})
	}
	if p.state.Cleared {
		return 0, apperrors.New(apperrors.CodeNotEligible, "the owner has cleared the party")
	}
	return index, nil
}
