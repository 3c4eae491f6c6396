package parties

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// TicketRef identifies a ticket to an external metadata renderer.
type TicketRef struct {
	Ledger common.Address `json:"ledger"`
	Index  uint64         `json:"index"`
}

// TicketRef returns the reference for an issued ticket.
func (p *Party) TicketRef(index uint64) (TicketRef, error) {
	if _, err := p.Participant(index); err != nil {
		return TicketRef{}, err
	}
	return TicketRef{Ledger: p.address, Index: index}, nil
}

// TicketDelegate returns the configured metadata delegate, if any.
func (p *Party) TicketDelegate() (common.Address, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.TicketDelegate, p.cfg.TicketDelegate != (common.Address{})
}

// TokenURI renders the metadata URI of ticket index as
// <base><ledger address>/<index>. Without a base URI it is just
// <ledger address>/<index>.
func (p *Party) TokenURI(index uint64) (string, error) {
	ref, err := p.TicketRef(index)
	if err != nil {
		return "", err
	}
	base := ""
	if p.uris != nil {
		base = p.uris.BaseTokenURI()
	}
	return fmt.Sprintf("%s%s/%s", base, ref.Ledger.Hex(), strconv.FormatUint(ref.Index, 10)), nil
}
