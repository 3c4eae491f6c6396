package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/CytonicMC/Cyparty/env"
	apperrors "github.com/CytonicMC/Cyparty/errors"
	"github.com/CytonicMC/Cyparty/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/nats-io/nats.go"
)

// Subscriber is the part of *nats.Conn the handlers subscribe through.
type Subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

var _ Subscriber = (*nats.Conn)(nil)

type handleFunc func(ctx context.Context, data []byte) GenericPartyResponsePacket

func subscribe(nc Subscriber, subject, what string, handle handleFunc) {
	_, err := nc.Subscribe(env.EnsurePrefixed(subject), func(msg *nats.Msg) {
		resp := handle(context.Background(), msg.Data)
		code := ""
		if !resp.Success {
			code = resp.Message
		}
		metrics.ObserveRequest(subject, code)
		reply(msg, resp)
	})
	if err != nil {
		log.Fatalf("Error subscribing to subject %s: %v", subject, err)
	}
	log.Printf("Listening for %s on subject '%s'", what, subject)
}

func reply(msg *nats.Msg, resp GenericPartyResponsePacket) {
	ack, err1 := json.Marshal(&resp)
	if err1 != nil {
		log.Printf("Error marshalling party packet response: %v", err1)
		return
	}
	if err := msg.Respond(ack); err != nil {
		log.Printf("Error sending acknowledgment: %v", err)
	}
}

// decode unmarshals data into packet, logging malformed messages.
func decode(data []byte, packet any, name string) bool {
	if err := json.Unmarshal(data, packet); err != nil {
		log.Printf("Invalid %s message format: %s", name, data)
		return false
	}
	return true
}

func ok(data any) GenericPartyResponsePacket {
	return GenericPartyResponsePacket{Success: true, Data: data}
}

func fail(err error) GenericPartyResponsePacket {
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeUnknown {
		log.Printf("Unexpected error handling request: %v", err)
	}
	resp := GenericPartyResponsePacket{Message: string(code)}
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) && len(domainErr.Metadata) > 0 {
		resp.Data = domainErr.Metadata
	}
	return resp
}

func invalid(reason string) GenericPartyResponsePacket {
	return fail(apperrors.New(apperrors.CodeInvalidRequest, reason))
}

func requireSender(sender common.Address) error {
	if sender == (common.Address{}) {
		return apperrors.New(apperrors.CodeInvalidRequest, "sender is required")
	}
	return nil
}
