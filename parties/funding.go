package parties

import (
	"context"
	"errors"
	"log"
	"math/big"

	"github.com/CytonicMC/Cyparty/assets"
	apperrors "github.com/CytonicMC/Cyparty/errors"
	"github.com/ethereum/go-ethereum/common"
)

// Mint credits amount of asset to to. Only factory admins can mint.
func (r *PartyRegistry) Mint(ctx context.Context, caller common.Address, asset assets.Asset, to common.Address, amount *big.Int) error {
	if !r.admins.IsAdmin(caller) {
		return apperrors.New(apperrors.CodeUnauthorized, "only a factory admin can mint")
	}
	if to == (common.Address{}) || amount == nil || amount.Sign() <= 0 {
		return apperrors.New(apperrors.CodeInvalidRequest, "mint needs a recipient and a positive amount")
	}
	if err := r.book.Mint(asset, to, amount); err != nil {
		return bookError(err)
	}
	log.Printf("Minted %s %s to %s", amount, asset, to.Hex())
	r.saveBalances(ctx)
	return nil
}

// ApproveSpend lets spender pull up to amount of token from caller.
func (r *PartyRegistry) ApproveSpend(ctx context.Context, caller common.Address, token, spender common.Address, amount *big.Int) error {
	if token == (common.Address{}) {
		return apperrors.New(apperrors.CodeInvalidRequest, "allowances only apply to tokens")
	}
	if spender == (common.Address{}) || amount == nil {
		return apperrors.New(apperrors.CodeInvalidRequest, "approve needs a spender and an amount")
	}
	if err := r.book.Approve(assets.TokenAsset(token), caller, spender, amount); err != nil {
		return bookError(err)
	}
	r.saveBalances(ctx)
	return nil
}

// BalanceOf returns what addr holds of asset.
func (r *PartyRegistry) BalanceOf(asset assets.Asset, addr common.Address) *big.Int {
	return r.book.BalanceOf(asset, addr)
}

func (r *PartyRegistry) saveBalances(ctx context.Context) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveBalances(ctx, r.book.Snapshot()); err != nil {
		log.Printf("Error saving balances: %v", err)
	}
}

func bookError(err error) error {
	if errors.Is(err, assets.ErrInvalidAmount) {
		return apperrors.Wrap(apperrors.CodeInvalidRequest, "invalid amount", err)
	}
	return apperrors.Wrap(apperrors.CodeTransferFailed, "asset book rejected the movement", err)
}
