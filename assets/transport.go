// Package assets moves value into and out of party ledgers.
//
// A Book keeps balances and allowances for the native currency and any
// number of fungible tokens. Each ledger talks to the Book through a
// Transport bound to the ledger's own account and payment asset.
package assets

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrWrongAmount is returned when the value attached to a pull does not
	// match what the asset requires.
	ErrWrongAmount = errors.New("attached value does not match the required amount")
	// ErrInsufficientBalance is returned when an account cannot cover a debit.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientAllowance is returned when a token pull exceeds the
	// spender's allowance.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	// ErrInvalidAmount is returned for negative amounts.
	ErrInvalidAmount = errors.New("amount must not be negative")
)

// Asset identifies what a party is paid in. The zero value is the native
// currency; otherwise Token is the fungible-token contract.
type Asset struct {
	Token common.Address `json:"token"`
}

// Native returns the native-currency asset.
func Native() Asset { return Asset{} }

// TokenAsset returns the asset for the given token contract.
func TokenAsset(token common.Address) Asset { return Asset{Token: token} }

func (a Asset) IsNative() bool { return a.Token == (common.Address{}) }

func (a Asset) String() string {
	if a.IsNative() {
		return "native"
	}
	return a.Token.Hex()
}

// Transfer is one outgoing payment.
type Transfer struct {
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

// Transport is what a ledger needs from the outside world to hold funds.
type Transport interface {
	// Asset reports the asset this transport moves.
	Asset() Asset
	// Pull collects exactly amount from from. For the native currency the
	// caller attaches the value, which must equal amount; for tokens nothing
	// may be attached and amount is taken under a prior allowance.
	Pull(ctx context.Context, from common.Address, attached *big.Int, amount *big.Int) error
	// Push pays out every transfer or none of them.
	Push(ctx context.Context, transfers ...Transfer) error
	// Balance returns the ledger's current holdings.
	Balance(ctx context.Context) (*big.Int, error)
}

// Sum adds the amounts of transfers.
func Sum(transfers []Transfer) *big.Int {
	total := new(big.Int)
	for _, t := range transfers {
		if t.Amount != nil {
			total.Add(total, t.Amount)
		}
	}
	return total
}
