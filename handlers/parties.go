package handlers

import (
	"context"

	"github.com/CytonicMC/Cyparty/access"
	"github.com/CytonicMC/Cyparty/parties"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type partyHandlers struct {
	registry *parties.PartyRegistry
}

// RegisterParties subscribes every per-party ledger operation.
func RegisterParties(nc Subscriber, registry *parties.PartyRegistry) {
	h := &partyHandlers{registry: registry}

	subscribe(nc, "party.register", "party registrations", h.register)
	subscribe(nc, "party.approve", "ticket approvals", h.approve)
	subscribe(nc, "party.transfer", "ticket transfers", h.transfer)
	subscribe(nc, "party.pause", "transfer pauses", h.pause)
	subscribe(nc, "party.unpause", "transfer unpauses", h.unpause)
	subscribe(nc, "party.rename", "party renames", h.rename)
	subscribe(nc, "party.deposit.change", "deposit changes", h.changeDeposit)
	subscribe(nc, "party.capacity", "capacity changes", h.setCapacity)
	subscribe(nc, "party.finalize", "party finalizations", h.finalize)
	subscribe(nc, "party.cancel", "party cancellations", h.cancel)
	subscribe(nc, "party.withdraw", "withdrawals", h.withdraw)
	subscribe(nc, "party.withdraw.split", "split withdrawals", h.sendAndWithdraw)
	subscribe(nc, "party.clear", "balance clears", h.clear)
	subscribe(nc, "party.clear.send", "forced payouts", h.clearAndSend)
	subscribe(nc, "party.fetch", "party fetch requests", h.fetch)
	subscribe(nc, "party.participant", "participant lookups", h.participant)
	subscribe(nc, "party.token_uri", "ticket URI lookups", h.tokenURI)
	subscribe(nc, "party.admin.grant", "party admin grants", h.grantAdmins)
	subscribe(nc, "party.admin.revoke", "party admin revocations", h.revokeAdmins)
	subscribe(nc, "party.owner.transfer", "party ownership transfers", h.transferOwnership)
}

func (h *partyHandlers) lookup(packet PartyPacket) (*parties.Party, error) {
	if err := requireSender(packet.Sender); err != nil {
		return nil, err
	}
	return h.registry.Lookup(packet.PartyID)
}

func (h *partyHandlers) register(ctx context.Context, data []byte) GenericPartyResponsePacket {
	var packet RegisterPacket
	if !decode(data, &packet, "RegisterPacket") {
		return invalid("malformed register packet")
	}
	party, err := h.lookup(packet.PartyPacket)
	if err != nil {
		return fail(err)
	}
	index, err := party.Register(ctx, packet.Sender, packet.Value)
	if err != nil {
		return fail(err)
	}
	return ok(RegisterResponse{Index: index})
}

func (h *partyHandlers) approve(ctx context.Context, data []byte) GenericPartyResponsePacket {
	var packet ApprovePacket
	if !decode(data, &packet, "ApprovePacket") {
		return invalid("malformed approve packet")
	}
	party, err := h.lookup(packet.PartyPacket)
	if err != nil {
		return fail(err)
	}
	if err := party.Approve(ctx, packet.Sender, packet.Approved, packet.Index); err != nil {
		return fail(err)
	}
	return ok(nil)
}

func (h *partyHandlers) transfer(ctx context.Context, data []byte) GenericPartyResponsePacket {
	var packet TicketTransferPacket
	if !decode(data, &packet, "TicketTransferPacket") {
		return invalid("malformed transfer packet")
	}
	party, err := h.lookup(packet.PartyPacket)
	if err != nil {
		return fail(err)
	}
	if err := party.Transfer(ctx, packet.Sender, packet.From, packet.To, packet.Index); err != nil {
		return fail(err)
	}
	return ok(nil)
}

func (h *partyHandlers) pause(ctx context.Context, data []byte) GenericPartyResponsePacket {
	return h.simple(ctx, data, (*parties.Party).Pause)
}

func (h *partyHandlers) unpause(ctx context.Context, data []byte) GenericPartyResponsePacket {
	return h.simple(ctx, data, (*parties.Party).Unpause)
}

func (h *partyHandlers) cancel(ctx context.Context, data []byte) GenericPartyResponsePacket {
	return h.simple(ctx, data, (*parties.Party).Cancel)
}

// simple runs an operation that needs nothing beyond the party and sender.
func (h *partyHandlers) simple(ctx context.Context, data []byte, op func(*parties.Party, context.Context, common.Address) error) GenericPartyResponsePacket {
	var packet PartyPacket
	if !decode(data, &packet, "PartyPacket") {
		return invalid("malformed party packet")
	}
	party, err := h.lookup(packet)
	if err != nil {
		return fail(err)
	}
	if err := op(party, ctx, packet.Sender); err != nil {
		return fail(err)
	}
	return ok(nil)
}

func (h *partyHandlers) rename(ctx context.Context, data []byte) GenericPartyResponsePacket {
	var packet RenamePacket
	if !decode(data, &packet, "RenamePacket") {
		return invalid("malformed rename packet")
	}
	party, err := h.lookup(packet.PartyPacket)
	if err != nil {
		return fail(err)
	}
	if err := party.ChangeName(ctx, packet.Sender, packet.Name); err != nil {
		return fail(err)
	}
	return ok(nil)
}

func (h *partyHandlers) changeDeposit(ctx context.Context, data []byte) GenericPartyResponsePacket {
	var packet DepositChangePacket
	if !decode(data, &packet, "DepositChangePacket") {
		return invalid("malformed deposit change packet")
	}
	party, err := h.lookup(packet.PartyPacket)
	if err != nil {
		return fail(err)
	}
	if err := party.ChangeDeposit(ctx, packet.Sender, packet.Deposit); err != nil {
		return fail(err)
	}
	return ok(nil)
}

func (h *partyHandlers) setCapacity(ctx context.Context, data []byte) GenericPartyResponsePacket {
	var packet CapacityPacket
	if !decode(data, &packet, "CapacityPacket") {
		return invalid("malformed capacity packet")
	}
	party, err := h.lookup(packet.PartyPacket)
	if err != nil {
		return fail(err)
	}
	if err := party.SetCapacity(ctx, packet.Sender, packet.Capacity); err != nil {
		return fail(err)
	}
	return ok(nil)
}

func (h *partyHandlers) finalize(ctx context.Context, data []byte) GenericPartyResponsePacket {
	var packet FinalizePacket
	if !decode(data, &packet, "FinalizePacket") {
		return invalid("malformed finalize packet")
	}
	if len(packet.Words) > 0 && len(packet.Attended) > 0 {
		return invalid("send either words or attended indices")
	}
	party, err := h.lookup(packet.PartyPacket)
	if err != nil {
		return fail(err)
	}
	if len(packet.Attended) > 0 {
		err = party.FinalizeIndices(ctx, packet.Sender, packet.Attended)
	} else {
		err = party.Finalize(ctx, packet.Sender, packet.Words)
	}
	if err != nil {
		return fail(err)
	}
	state := party.State()
	return ok(AmountResponse{Amount: state.PayoutAmount})
}

func (h *partyHandlers) withdraw(ctx context.Context, data []byte) GenericPartyResponsePacket {
	var packet PartyPacket
	if !decode(data, &packet, "PartyPacket") {
		return invalid("malformed withdraw packet")
	}
	party, err := h.lookup(packet)
	if err != nil {
		return fail(err)
	}
	amount, err := party.Withdraw(ctx, packet.Sender)
	if err != nil {
		return fail(err)
	}
	return ok(AmountResponse{Amount: amount})
}

func (h *partyHandlers) sendAndWithdraw(ctx context.Context, data []byte) GenericPartyResponsePacket {
	var packet SplitPacket
	if !decode(data, &packet, "SplitPacket") {
		return invalid("malformed split packet")
	}
	party, err := h.lookup(packet.PartyPacket)
	if err != nil {
		return fail(err)
	}
	paid, err := party.SendAndWithdraw(ctx, packet.Sender, packet.Recipients, packet.Amounts)
	if err != nil {
		return fail(err)
	}
	return ok(paid)
}

func (h *partyHandlers) clear(ctx context.Context, data []byte) GenericPartyResponsePacket {
	var packet PartyPacket
	if !decode(data, &packet, "PartyPacket") {
		return invalid("malformed clear packet")
	}
	party, err := h.lookup(packet)
	if err != nil {
		return fail(err)
	}
	amount, err := party.Clear(ctx, packet.Sender)
	if err != nil {
		return fail(err)
	}
	return ok(AmountResponse{Amount: amount})
}

func (h *partyHandlers) clearAndSend(ctx context.Context, data []byte) GenericPartyResponsePacket {
	var packet ClearSendPacket
	if !decode(data, &packet, "ClearSendPacket") {
		return invalid("malformed clear and send packet")
	}
	party, err := h.lookup(packet.PartyPacket)
	if err != nil {
		return fail(err)
	}
	result, err := party.ClearAndSend(ctx, packet.Sender, packet.Limit)
	if err != nil {
		return fail(err)
	}
	return ok(result)
}

// fetch returns one party snapshot, or every snapshot when no party is named.
func (h *partyHandlers) fetch(_ context.Context, data []byte) GenericPartyResponsePacket {
	var packet PartyPacket
	if len(data) > 0 && !decode(data, &packet, "PartyPacket") {
		return invalid("malformed fetch packet")
	}
	if packet.PartyID == uuid.Nil {
		all := h.registry.GetAllParties()
		snaps := make([]parties.Snapshot, 0, len(all))
		for _, party := range all {
			snaps = append(snaps, party.Snapshot())
		}
		return ok(snaps)
	}
	party, err := h.registry.Lookup(packet.PartyID)
	if err != nil {
		return fail(err)
	}
	return ok(party.Snapshot())
}

func (h *partyHandlers) participant(_ context.Context, data []byte) GenericPartyResponsePacket {
	var packet TicketPacket
	if !decode(data, &packet, "TicketPacket") {
		return invalid("malformed ticket packet")
	}
	party, err := h.registry.Lookup(packet.PartyID)
	if err != nil {
		return fail(err)
	}
	var p parties.Participant
	if packet.Holder != nil {
		p, err = party.ParticipantOf(*packet.Holder)
	} else {
		p, err = party.Participant(packet.Index)
	}
	if err != nil {
		return fail(err)
	}
	return ok(p)
}

func (h *partyHandlers) tokenURI(_ context.Context, data []byte) GenericPartyResponsePacket {
	var packet TicketPacket
	if !decode(data, &packet, "TicketPacket") {
		return invalid("malformed ticket packet")
	}
	party, err := h.registry.Lookup(packet.PartyID)
	if err != nil {
		return fail(err)
	}
	uri, err := party.TokenURI(packet.Index)
	if err != nil {
		return fail(err)
	}
	resp := TokenURIResponse{URI: uri, Ledger: party.Address(), Index: packet.Index}
	if delegate, ok := party.TicketDelegate(); ok {
		resp.Delegate = &delegate
	}
	return ok(resp)
}

func (h *partyHandlers) grantAdmins(_ context.Context, data []byte) GenericPartyResponsePacket {
	return h.changeAccess(data, (*access.Registry).Grant)
}

func (h *partyHandlers) revokeAdmins(_ context.Context, data []byte) GenericPartyResponsePacket {
	return h.changeAccess(data, (*access.Registry).Revoke)
}

func (h *partyHandlers) changeAccess(data []byte, op func(*access.Registry, common.Address, ...common.Address) error) GenericPartyResponsePacket {
	var packet AccessPacket
	if !decode(data, &packet, "AccessPacket") {
		return invalid("malformed access packet")
	}
	if err := requireSender(packet.Sender); err != nil {
		return fail(err)
	}
	acl, err := h.registry.PartyAccess(packet.PartyID)
	if err != nil {
		return fail(err)
	}
	if err := op(acl, packet.Sender, packet.Addresses...); err != nil {
		return fail(err)
	}
	return ok(nil)
}

func (h *partyHandlers) transferOwnership(_ context.Context, data []byte) GenericPartyResponsePacket {
	var packet OwnerPacket
	if !decode(data, &packet, "OwnerPacket") {
		return invalid("malformed owner packet")
	}
	if err := requireSender(packet.Sender); err != nil {
		return fail(err)
	}
	acl, err := h.registry.PartyAccess(packet.PartyID)
	if err != nil {
		return fail(err)
	}
	if err := acl.TransferOwnership(packet.Sender, packet.Owner); err != nil {
		return fail(err)
	}
	return ok(nil)
}
