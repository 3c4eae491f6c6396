package parties

import (
	"fmt"
	"math/big"
	"time"

	"github.com/CytonicMC/Cyparty/assets"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Snapshot is the persisted form of a Party. Amounts are decimal strings and
// addresses are hex so the encoding does not depend on big.Int internals.
type Snapshot struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Deposit        string   `json:"deposit"`
	Capacity       uint64   `json:"capacity"`
	CoolingPeriod  int64    `json:"cooling_period"`
	Owner          string   `json:"owner"`
	Admins         []string `json:"admins,omitempty"`
	FeeRate        uint64   `json:"fee_rate"`
	Token          string   `json:"token,omitempty"`
	TicketDelegate string   `json:"ticket_delegate,omitempty"`

	Mode            string `json:"mode"`
	EndedAt         int64  `json:"ended_at,omitempty"`
	PayoutAmount    string `json:"payout_amount"`
	Attended        uint64 `json:"attended"`
	TransfersPaused bool   `json:"transfers_paused"`
	SweepCursor     uint64 `json:"sweep_cursor"`
	Cleared         bool   `json:"cleared,omitempty"`

	Holders         []string          `json:"holders"`
	Approvals       map[uint64]string `json:"approvals,omitempty"`
	AttendedIndices []uint64          `json:"attended_indices,omitempty"`
	PaidIndices     []uint64          `json:"paid_indices,omitempty"`
}

type adminLister interface {
	Admins() []common.Address
}

// Snapshot captures the party as it is right now.
func (p *Party) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Party) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:              p.id.String(),
		Name:            p.cfg.Name,
		Deposit:         p.cfg.Deposit.String(),
		Capacity:        p.cfg.Capacity,
		CoolingPeriod:   int64(p.cfg.CoolingPeriod),
		Owner:           p.auth.Owner().Hex(),
		FeeRate:         p.cfg.FeeRate,
		Mode:            p.state.Mode.String(),
		PayoutAmount:    p.state.PayoutAmount.String(),
		Attended:        p.state.Attended,
		TransfersPaused: p.state.TransfersPaused,
		SweepCursor:     p.state.SweepCursor,
		Cleared:         p.state.Cleared,
	}
	if !p.cfg.Asset.IsNative() {
		snap.Token = p.cfg.Asset.Token.Hex()
	}
	if p.cfg.TicketDelegate != (common.Address{}) {
		snap.TicketDelegate = p.cfg.TicketDelegate.Hex()
	}
	if !p.state.EndedAt.IsZero() {
		snap.EndedAt = p.state.EndedAt.UnixNano()
	}
	if lister, ok := p.auth.(adminLister); ok {
		for _, admin := range lister.Admins() {
			snap.Admins = append(snap.Admins, admin.Hex())
		}
	}

	holders := p.tickets.Holders()
	snap.Holders = make([]string, len(holders))
	for i, holder := range holders {
		index := uint64(i + 1)
		snap.Holders[i] = holder.Hex()
		if approved, ok := p.tickets.Approved(index); ok {
			if snap.Approvals == nil {
				snap.Approvals = make(map[uint64]string)
			}
			snap.Approvals[index] = approved.Hex()
		}
		if p.entries[i].attended {
			snap.AttendedIndices = append(snap.AttendedIndices, index)
		}
		if p.entries[i].paid {
			snap.PaidIndices = append(snap.PaidIndices, index)
		}
	}
	return snap
}

// ConfigFromSnapshot decodes the configuration part of snap.
func ConfigFromSnapshot(snap Snapshot) (Config, error) {
	deposit, ok := new(big.Int).SetString(snap.Deposit, 10)
	if !ok {
		return Config{}, fmt.Errorf("invalid deposit %q", snap.Deposit)
	}
	cfg := Config{
		Name:          snap.Name,
		Deposit:       deposit,
		Capacity:      snap.Capacity,
		CoolingPeriod: time.Duration(snap.CoolingPeriod),
		Owner:         common.HexToAddress(snap.Owner),
		FeeRate:       snap.FeeRate,
		Asset:         assets.Native(),
	}
	if snap.Token != "" {
		cfg.Asset = assets.TokenAsset(common.HexToAddress(snap.Token))
	}
	if snap.TicketDelegate != "" {
		cfg.TicketDelegate = common.HexToAddress(snap.TicketDelegate)
	}
	return cfg, nil
}

// AdminsFromSnapshot decodes the admin list of snap.
func AdminsFromSnapshot(snap Snapshot) []common.Address {
	admins := make([]common.Address, 0, len(snap.Admins))
	for _, admin := range snap.Admins {
		admins = append(admins, common.HexToAddress(admin))
	}
	return admins
}

// Restore rebuilds a party from snap. deps.Authorizer should already carry
// the snapshot's owner and admins.
func Restore(snap Snapshot, deps Deps) (*Party, error) {
	id, err := uuid.Parse(snap.ID)
	if err != nil {
		return nil, fmt.Errorf("parse party id: %w", err)
	}
	cfg, err := ConfigFromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	p, err := New(id, cfg, deps)
	if err != nil {
		return nil, err
	}

	mode, err := ParseMode(snap.Mode)
	if err != nil {
		return nil, err
	}
	payout, ok := new(big.Int).SetString(snap.PayoutAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid payout amount %q", snap.PayoutAmount)
	}

	holders := make([]common.Address, len(snap.Holders))
	for i, holder := range snap.Holders {
		holders[i] = common.HexToAddress(holder)
	}
	approvals := make(map[uint64]common.Address, len(snap.Approvals))
	for index, addr := range snap.Approvals {
		approvals[index] = common.HexToAddress(addr)
	}
	if err := p.tickets.Restore(holders, approvals); err != nil {
		return nil, fmt.Errorf("restore tickets of party %s: %w", snap.ID, err)
	}

	p.entries = make([]ledgerEntry, len(holders))
	for _, index := range snap.AttendedIndices {
		if index == 0 || index > uint64(len(holders)) {
			return nil, fmt.Errorf("attended index %d out of range", index)
		}
		p.entries[index-1].attended = true
	}
	for _, index := range snap.PaidIndices {
		if index == 0 || index > uint64(len(holders)) {
			return nil, fmt.Errorf("paid index %d out of range", index)
		}
		p.entries[index-1].paid = true
	}

	p.state = State{
		Registered:      uint64(len(holders)),
		Mode:            mode,
		PayoutAmount:    payout,
		Attended:        snap.Attended,
		TransfersPaused: snap.TransfersPaused,
		SweepCursor:     snap.SweepCursor,
		Cleared:         snap.Cleared,
	}
	if snap.EndedAt != 0 {
		p.state.EndedAt = time.Unix(0, snap.EndedAt).UTC()
	}
	return p, nil
}
