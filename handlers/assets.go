package handlers

import (
	"context"

	"github.com/CytonicMC/Cyparty/assets"
	"github.com/CytonicMC/Cyparty/parties"
)

type assetHandlers struct {
	registry *parties.PartyRegistry
}

// RegisterAssets subscribes funding and balance queries against the book.
func RegisterAssets(nc Subscriber, registry *parties.PartyRegistry) {
	h := &assetHandlers{registry: registry}

	subscribe(nc, "assets.mint", "asset mints", h.mint)
	subscribe(nc, "assets.approve", "token allowances", h.approve)
	subscribe(nc, "assets.balance", "balance lookups", h.balance)
}

func (h *assetHandlers) mint(ctx context.Context, data []byte) GenericPartyResponsePacket {
	var packet MintPacket
	if !decode(data, &packet, "MintPacket") {
		return invalid("malformed mint packet")
	}
	if err := h.registry.Mint(ctx, packet.Sender, assets.TokenAsset(packet.Token), packet.To, packet.Amount); err != nil {
		return fail(err)
	}
	return ok(nil)
}

func (h *assetHandlers) approve(ctx context.Context, data []byte) GenericPartyResponsePacket {
	var packet AllowancePacket
	if !decode(data, &packet, "AllowancePacket") {
		return invalid("malformed allowance packet")
	}
	if err := requireSender(packet.Sender); err != nil {
		return fail(err)
	}
	if err := h.registry.ApproveSpend(ctx, packet.Sender, packet.Token, packet.Spender, packet.Amount); err != nil {
		return fail(err)
	}
	return ok(nil)
}

func (h *assetHandlers) balance(_ context.Context, data []byte) GenericPartyResponsePacket {
	var packet BalancePacket
	if !decode(data, &packet, "BalancePacket") {
		return invalid("malformed balance packet")
	}
	asset := assets.TokenAsset(packet.Token)
	resp := BalanceResponse{Balance: h.registry.BalanceOf(asset, packet.Address)}
	if packet.Spender != nil && !asset.IsNative() {
		resp.Allowance = h.registry.Book().Allowance(asset, packet.Address, *packet.Spender)
	}
	return ok(resp)
}
