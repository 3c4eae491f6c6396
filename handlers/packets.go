package handlers

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// GenericPartyResponsePacket is the reply to every request. Message carries
// the error code when Success is false.
type GenericPartyResponsePacket struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// PartyPacket addresses one party on behalf of Sender.
type PartyPacket struct {
	Sender  common.Address `json:"sender"`
	PartyID uuid.UUID      `json:"party_id"`
}

type DeployPacket struct {
	Sender         common.Address `json:"sender"`
	Name           string         `json:"name"`
	Deposit        *big.Int       `json:"deposit,omitempty"`
	Capacity       uint64         `json:"capacity,omitempty"`
	CoolingPeriod  string         `json:"cooling_period,omitempty"` // time.ParseDuration format
	Token          common.Address `json:"token"`
	TicketDelegate common.Address `json:"ticket_delegate"`
}

type DeployResponse struct {
	PartyID uuid.UUID      `json:"party_id"`
	Address common.Address `json:"address"`
}

type RegisterPacket struct {
	PartyPacket
	Value *big.Int `json:"value,omitempty"`
}

type RegisterResponse struct {
	Index uint64 `json:"index"`
}

type ApprovePacket struct {
	PartyPacket
	Approved common.Address `json:"approved"`
	Index    uint64         `json:"index"`
}

type TicketTransferPacket struct {
	PartyPacket
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Index uint64         `json:"index"`
}

type RenamePacket struct {
	PartyPacket
	Name string `json:"name"`
}

type DepositChangePacket struct {
	PartyPacket
	Deposit *big.Int `json:"deposit"`
}

type CapacityPacket struct {
	PartyPacket
	Capacity uint64 `json:"capacity"`
}

// FinalizePacket carries the attendance bitmap as words, or the attended
// ticket indices which are encoded into words.
type FinalizePacket struct {
	PartyPacket
	Words    []*big.Int `json:"words,omitempty"`
	Attended []uint64   `json:"attended,omitempty"`
}

type SplitPacket struct {
	PartyPacket
	Recipients []common.Address `json:"recipients"`
	Amounts    []*big.Int       `json:"amounts"`
}

type ClearSendPacket struct {
	PartyPacket
	Limit int `json:"limit"`
}

type AmountResponse struct {
	Amount *big.Int `json:"amount"`
}

// TicketPacket selects a ticket by index, or by holder when Holder is set.
type TicketPacket struct {
	PartyID uuid.UUID       `json:"party_id"`
	Index   uint64          `json:"index,omitempty"`
	Holder  *common.Address `json:"holder,omitempty"`
}

type TokenURIResponse struct {
	URI      string          `json:"uri"`
	Ledger   common.Address  `json:"ledger"`
	Index    uint64          `json:"index"`
	Delegate *common.Address `json:"delegate,omitempty"`
}

type AccessPacket struct {
	PartyPacket
	Addresses []common.Address `json:"addresses"`
}

type OwnerPacket struct {
	PartyPacket
	Owner common.Address `json:"owner"`
}

type FeePacket struct {
	Sender  common.Address `json:"sender"`
	FeeRate uint64         `json:"fee_rate"`
}

type URIPacket struct {
	Sender common.Address `json:"sender"`
	URI    string         `json:"uri"`
}

type MintPacket struct {
	Sender common.Address `json:"sender"`
	To     common.Address `json:"to"`
	Token  common.Address `json:"token"`
	Amount *big.Int       `json:"amount"`
}

type AllowancePacket struct {
	Sender  common.Address `json:"sender"`
	Token   common.Address `json:"token"`
	Spender common.Address `json:"spender"`
	Amount  *big.Int       `json:"amount"`
}

// BalancePacket asks for a holding, and the allowance given to Spender
// when it is set.
type BalancePacket struct {
	Address common.Address  `json:"address"`
	Token   common.Address  `json:"token"`
	Spender *common.Address `json:"spender,omitempty"`
}

type BalanceResponse struct {
	Balance   *big.Int `json:"balance"`
	Allowance *big.Int `json:"allowance,omitempty"`
}

