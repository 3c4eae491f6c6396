package parties

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/CytonicMC/Cyparty/assets"
	apperrors "github.com/CytonicMC/Cyparty/errors"
	"github.com/CytonicMC/Cyparty/events"
	"github.com/ethereum/go-ethereum/common"
)

// Register issues the next ticket to caller against exactly one deposit.
// For native parties attached must equal the deposit; for token parties
// attached must be zero and the deposit is pulled under caller's allowance.
func (p *Party) Register(ctx context.Context, caller common.Address, attached *big.Int) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireOpen("register"); err != nil {
		return 0, err
	}
	if p.state.Registered >= p.cfg.Capacity {
		return 0, apperrors.WithMetadata(apperrors.CodeCapacityExceeded,
			fmt.Sprintf("party is full at %d registrations", p.cfg.Capacity),
			map[string]string{"capacity": fmt.Sprint(p.cfg.Capacity)})
	}

	t := p.begin()
	index, err := p.tickets.Issue(caller)
	if err != nil {
		return 0, err
	}
	t.onRollback(func() { p.tickets.Revoke(index) })
	p.entries = append(p.entries, ledgerEntry{})
	p.state.Registered++
	t.onRollback(func() {
		p.entries = p.entries[:len(p.entries)-1]
		p.state.Registered--
	})

	if err := p.transport.Pull(ctx, caller, attached, p.cfg.Deposit); err != nil {
		t.rollback()
		if errors.Is(err, assets.ErrWrongAmount) {
			return 0, apperrors.Wrap(apperrors.CodeWrongDepositAmount,
				fmt.Sprintf("deposit must be exactly %s", p.cfg.Deposit), err)
		}
		return 0, transferError(err, "collect deposit")
	}

	t.emit(events.Record{Kind: events.KindRegister, Actor: caller, Index: index, Amount: new(big.Int).Set(p.cfg.Deposit)})
	t.commit(ctx)
	return index, nil
}

// Approve lets approved move index on its holder's behalf.
func (p *Party) Approve(ctx context.Context, caller, approved common.Address, index uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.tickets.Approve(caller, approved, index); err != nil {
		return err
	}
	t := p.begin()
	t.emit(events.Record{Kind: events.KindApprove, Actor: caller, Subject: events.AddressPtr(approved), Index: index})
	t.commit(ctx)
	return nil
}

// Transfer moves ticket index from from to to. Attendance and payment stay
// with the index.
func (p *Party) Transfer(ctx context.Context, caller, from, to common.Address, index uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.TransfersPaused {
		return apperrors.New(apperrors.CodeTransferPaused, "ticket transfers are paused")
	}
	if err := p.tickets.Transfer(caller, from, to, index); err != nil {
		return err
	}
	t := p.begin()
	t.emit(events.Record{Kind: events.KindTransfer, Actor: caller, Subject: events.AddressPtr(to), Index: index, Detail: from.Hex()})
	t.commit(ctx)
	return nil
}

// Pause stops ticket transfers. Parties start paused.
func (p *Party) Pause(ctx context.Context, caller common.Address) error {
	return p.setPaused(ctx, caller, true)
}

// Unpause allows ticket transfers.
func (p *Party) Unpause(ctx context.Context, caller common.Address) error {
	return p.setPaused(ctx, caller, false)
}

func (p *Party) setPaused(ctx context.Context, caller common.Address, paused bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireOwner(caller, "pause transfers"); err != nil {
		return err
	}
	if p.state.TransfersPaused == paused {
		return nil
	}
	p.state.TransfersPaused = paused
	kind := events.KindUnpause
	if paused {
		kind = events.KindPause
	}
	t := p.begin()
	t.emit(events.Record{Kind: kind, Actor: caller})
	t.commit(ctx)
	return nil
}

// ChangeName renames the party. Only allowed before anyone registers.
func (p *Party) ChangeName(ctx context.Context, caller common.Address, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireUnlockedConfig(caller, "change the name"); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.New(apperrors.CodeInvalidConfig, "name is required")
	}
	p.cfg.Name = name
	t := p.begin()
	t.emit(events.Record{Kind: events.KindChangeName, Actor: caller, Detail: name})
	t.commit(ctx)
	return nil
}

// ChangeDeposit sets a new deposit. Only allowed before anyone registers.
func (p *Party) ChangeDeposit(ctx context.Context, caller common.Address, deposit *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireUnlockedConfig(caller, "change the deposit"); err != nil {
		return err
	}
	if deposit == nil || deposit.Sign() <= 0 {
		return apperrors.New(apperrors.CodeInvalidConfig, "deposit must be positive")
	}
	p.cfg.Deposit = new(big.Int).Set(deposit)
	t := p.begin()
	t.emit(events.Record{Kind: events.KindChangeDeposit, Actor: caller, Amount: new(big.Int).Set(deposit)})
	t.commit(ctx)
	return nil
}

// SetCapacity changes the participant limit while the party is open. It
// cannot drop below the number of tickets already issued.
func (p *Party) SetCapacity(ctx context.Context, caller common.Address, capacity uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireOwner(caller, "set the capacity"); err != nil {
		return err
	}
	if err := p.requireOpen("set the capacity"); err != nil {
		return err
	}
	if capacity == 0 {
		return apperrors.New(apperrors.CodeInvalidConfig, "capacity must be positive")
	}
	if capacity < p.state.Registered {
		return apperrors.WithMetadata(apperrors.CodeCapacityExceeded,
			fmt.Sprintf("capacity %d is below %d registrations", capacity, p.state.Registered),
			map[string]string{"registered": fmt.Sprint(p.state.Registered)})
	}
	p.cfg.Capacity = capacity
	t := p.begin()
	t.emit(events.Record{Kind: events.KindUpdateParticipantLimit, Actor: caller, Index: capacity})
	t.commit(ctx)
	return nil
}

func (p *Party) requireUnlockedConfig(caller common.Address, op string) error {
	if err := p.requireOwner(caller, op); err != nil {
		return err
	}
	if err := p.requireOpen(op); err != nil {
		return err
	}
	if p.state.Registered > 0 {
		return apperrors.New(apperrors.CodeConfigLocked, fmt.Sprintf("cannot %s after registrations", op))
	}
	return nil
}
