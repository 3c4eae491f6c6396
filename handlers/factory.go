package handlers

import (
	"context"
	"time"

	"github.com/CytonicMC/Cyparty/access"
	"github.com/CytonicMC/Cyparty/parties"
	"github.com/ethereum/go-ethereum/common"
)

type factoryHandlers struct {
	registry *parties.PartyRegistry
}

// RegisterFactory subscribes party deployment and the factory settings.
func RegisterFactory(nc Subscriber, registry *parties.PartyRegistry) {
	h := &factoryHandlers{registry: registry}

	subscribe(nc, "party.deploy", "party deployments", h.deploy)
	subscribe(nc, "factory.fee.change", "fee rate changes", h.changeFeeRate)
	subscribe(nc, "factory.uri.change", "base token URI changes", h.changeBaseTokenURI)
	subscribe(nc, "factory.admin.grant", "factory admin grants", h.grantAdmins)
	subscribe(nc, "factory.admin.revoke", "factory admin revocations", h.revokeAdmins)
}

func (h *factoryHandlers) deploy(ctx context.Context, data []byte) GenericPartyResponsePacket {
	var packet DeployPacket
	if !decode(data, &packet, "DeployPacket") {
		return invalid("malformed deploy packet")
	}
	if err := requireSender(packet.Sender); err != nil {
		return fail(err)
	}
	var cooling time.Duration
	if packet.CoolingPeriod != "" {
		d, err := time.ParseDuration(packet.CoolingPeriod)
		if err != nil || d < 0 {
			return invalid("cooling period must be a non-negative duration")
		}
		cooling = d
	}
	party, err := h.registry.Deploy(ctx, packet.Sender, parties.DeployRequest{
		Name:           packet.Name,
		Deposit:        packet.Deposit,
		Capacity:       packet.Capacity,
		CoolingPeriod:  cooling,
		Token:          packet.Token,
		TicketDelegate: packet.TicketDelegate,
	})
	if err != nil {
		return fail(err)
	}
	return ok(DeployResponse{PartyID: party.ID(), Address: party.Address()})
}

func (h *factoryHandlers) changeFeeRate(ctx context.Context, data []byte) GenericPartyResponsePacket {
	var packet FeePacket
	if !decode(data, &packet, "FeePacket") {
		return invalid("malformed fee packet")
	}
	if err := h.registry.ChangeFeeRate(ctx, packet.Sender, packet.FeeRate); err != nil {
		return fail(err)
	}
	return ok(nil)
}

func (h *factoryHandlers) changeBaseTokenURI(ctx context.Context, data []byte) GenericPartyResponsePacket {
	var packet URIPacket
	if !decode(data, &packet, "URIPacket") {
		return invalid("malformed uri packet")
	}
	if err := h.registry.ChangeBaseTokenURI(ctx, packet.Sender, packet.URI); err != nil {
		return fail(err)
	}
	return ok(nil)
}

func (h *factoryHandlers) grantAdmins(_ context.Context, data []byte) GenericPartyResponsePacket {
	return h.changeAccess(data, (*access.Registry).Grant)
}

func (h *factoryHandlers) revokeAdmins(_ context.Context, data []byte) GenericPartyResponsePacket {
	return h.changeAccess(data, (*access.Registry).Revoke)
}

func (h *factoryHandlers) changeAccess(data []byte, op func(*access.Registry, common.Address, ...common.Address) error) GenericPartyResponsePacket {
	var packet AccessPacket
	if !decode(data, &packet, "AccessPacket") {
		return invalid("malformed access packet")
	}
	if err := requireSender(packet.Sender); err != nil {
		return fail(err)
	}
	if err := op(h.registry.Admins(), packet.Sender, packet.Addresses...); err != nil {
		return fail(err)
	}
	return ok(nil)
}
