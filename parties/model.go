package parties

import (
	"fmt"
	"math/big"
	"time"

	"github.com/CytonicMC/Cyparty/assets"
	"github.com/ethereum/go-ethereum/common"
)

// Mode is where a party sits in its lifecycle.
type Mode uint8

const (
	ModeOpen Mode = iota
	ModeFinalized
	ModeCancelled
)

func (m Mode) String() string {
	switch m {
	case ModeOpen:
		return "open"
	case ModeFinalized:
		return "finalized"
	case ModeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "open":
		return ModeOpen, nil
	case "finalized":
		return ModeFinalized, nil
	case "cancelled":
		return ModeCancelled, nil
	}
	return 0, fmt.Errorf("unknown party mode %q", s)
}

// FeeDenominator is the unit FeeRate is expressed in: a FeeRate of 10 keeps
// 10/1000 of every forced payout.
const FeeDenominator = 1000

// Config is fixed at creation; Name, Deposit and Capacity may change while
// the party is open (see ChangeName, ChangeDeposit, SetCapacity).
type Config struct {
	Name           string
	Deposit        *big.Int
	Capacity       uint64
	CoolingPeriod  time.Duration
	Owner          common.Address
	FeeRate        uint64
	Asset          assets.Asset
	TicketDelegate common.Address
}

func (c Config) clone() Config {
	out := c
	if c.Deposit != nil {
		out.Deposit = new(big.Int).Set(c.Deposit)
	}
	return out
}

// State is the mutable part of a party.
type State struct {
	Registered      uint64
	EndedAt         time.Time
	Mode            Mode
	PayoutAmount    *big.Int
	Attended        uint64
	TransfersPaused bool
	SweepCursor     uint64
	// Cleared is set once the owner swept the whole balance with Clear.
	Cleared bool
}

func (s State) clone() State {
	out := s
	out.PayoutAmount = new(big.Int)
	if s.PayoutAmount != nil {
		out.PayoutAmount.Set(s.PayoutAmount)
	}
	return out
}

// Participant joins a ticket's current holder with the attendance and
// payment flags bound to its index.
type Participant struct {
	Index    uint64         `json:"index"`
	Holder   common.Address `json:"holder"`
	Attended bool           `json:"attended"`
	Paid     bool           `json:"paid"`
}

// ledgerEntry is what the ledger remembers per index. It never moves with
// the ticket.
type ledgerEntry struct {
	attended bool
	paid     bool
}

// Authorizer answers who may perform privileged calls.
type Authorizer interface {
	Owner() common.Address
	IsAdmin(addr common.Address) bool
}

// URIProvider supplies the base URI ticket metadata is rendered under.
type URIProvider interface {
	BaseTokenURI() string
}

// Clock is the ledger's notion of time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock reads the wall clock.
func SystemClock() Clock { return systemClock{} }
