package parties

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"

	"github.com/CytonicMC/Cyparty/access"
	"github.com/CytonicMC/Cyparty/assets"
	apperrors "github.com/CytonicMC/Cyparty/errors"
	"github.com/CytonicMC/Cyparty/events"
	"github.com/CytonicMC/Cyparty/tickets"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Deps are the collaborators a Party is built with.
type Deps struct {
	// Transport holds the escrowed funds. Required.
	Transport assets.Transport
	// Authorizer decides owner and admin checks. Defaults to a fresh
	// access.Registry owned by Config.Owner.
	Authorizer Authorizer
	Publisher  events.Publisher
	Clock      Clock
	URIs       URIProvider
	// OnCommit runs after every committed operation, under the party lock.
	OnCommit func(ctx context.Context, snap Snapshot)
}

// Party is the deposit ledger of one event. Every exported mutating method
// runs as a single transaction: it either commits fully or leaves the party
// exactly as it was.
type Party struct {
	mu      sync.Mutex
	id      uuid.UUID
	address common.Address
	cfg     Config
	state   State
	entries []ledgerEntry // entries[i] belongs to ticket index i+1
	tickets *tickets.Registry

	auth      Authorizer
	transport assets.Transport
	publisher events.Publisher
	clock     Clock
	uris      URIProvider
	onCommit  func(ctx context.Context, snap Snapshot)
}

// LedgerAddress derives the address a party holds funds under from its ID.
func LedgerAddress(id uuid.UUID) common.Address {
	return common.BytesToAddress(id[:])
}

// New creates an open party. Every required config field must be set; the
// factory is where defaults get substituted.
func New(id uuid.UUID, cfg Config, deps Deps) (*Party, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if deps.Transport == nil {
		return nil, apperrors.New(apperrors.CodeInvalidConfig, "asset transport is required")
	}
	if deps.Transport.Asset() != cfg.Asset {
		return nil, apperrors.New(apperrors.CodeInvalidConfig,
			fmt.Sprintf("transport moves %s but the party is paid in %s", deps.Transport.Asset(), cfg.Asset))
	}
	auth := deps.Authorizer
	if auth == nil {
		reg, err := access.NewRegistry(cfg.Owner)
		if err != nil {
			return nil, err
		}
		auth = reg
	}

	p := &Party{
		id:      id,
		address: LedgerAddress(id),
		cfg:     cfg.clone(),
		state: State{
			Mode:            ModeOpen,
			PayoutAmount:    new(big.Int),
			TransfersPaused: true,
		},
		tickets: tickets.NewRegistry(),
	}
	p.wire(auth, deps)
	return p, nil
}

func (p *Party) wire(auth Authorizer, deps Deps) {
	p.auth = auth
	p.transport = deps.Transport
	p.publisher = deps.Publisher
	if p.publisher == nil {
		p.publisher = events.Discard
	}
	p.clock = deps.Clock
	if p.clock == nil {
		p.clock = SystemClock()
	}
	p.uris = deps.URIs
	p.onCommit = deps.OnCommit
}

func validateConfig(cfg Config) error {
	var missing []string
	if strings.TrimSpace(cfg.Name) == "" {
		missing = append(missing, "name")
	}
	if cfg.Deposit == nil || cfg.Deposit.Sign() <= 0 {
		missing = append(missing, "deposit")
	}
	if cfg.Capacity == 0 {
		missing = append(missing, "capacity")
	}
	if cfg.CoolingPeriod <= 0 {
		missing = append(missing, "cooling period")
	}
	if cfg.Owner == (common.Address{}) {
		missing = append(missing, "owner")
	}
	if len(missing) > 0 {
		return apperrors.New(apperrors.CodeInvalidConfig, "missing "+strings.Join(missing, ", "))
	}
	if cfg.FeeRate > FeeDenominator {
		return apperrors.New(apperrors.CodeInvalidConfig, fmt.Sprintf("fee rate %d exceeds %d", cfg.FeeRate, FeeDenominator))
	}
	return nil
}

func (p *Party) ID() uuid.UUID { return p.id }

// Address is the party's identity on the asset book.
func (p *Party) Address() common.Address { return p.address }

func (p *Party) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	cfg := p.cfg.clone()
	cfg.Owner = p.auth.Owner()
	return cfg
}

func (p *Party) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

// Owner returns the current owner, following ownership transfers.
func (p *Party) Owner() common.Address {
	return p.auth.Owner()
}

// Balance returns the funds currently escrowed.
func (p *Party) Balance(ctx context.Context) (*big.Int, error) {
	return p.transport.Balance(ctx)
}

// Participant returns the ticket at index.
func (p *Party) Participant(index uint64) (Participant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.participantLocked(index)
}

// ParticipantOf returns the live ticket held by addr.
func (p *Party) ParticipantOf(addr common.Address) (Participant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	index, ok := p.tickets.IndexOf(addr)
	if !ok {
		return Participant{}, apperrors.New(apperrors.CodeNotRegistered, fmt.Sprintf("%s holds no ticket", addr.Hex()))
	}
	return p.participantLocked(index)
}

// Participants lists every issued ticket in index order.
func (p *Party) Participants() []Participant {
	p.mu.Lock()
	defer p.mu.Unlock()
	holders := p.tickets.Holders()
	out := make([]Participant, len(holders))
	for i, holder := range holders {
		out[i] = Participant{
			Index:    uint64(i + 1),
			Holder:   holder,
			Attended: p.entries[i].attended,
			Paid:     p.entries[i].paid,
		}
	}
	return out
}

func (p *Party) IsRegistered(addr common.Address) bool {
	_, err := p.ParticipantOf(addr)
	return err == nil
}

func (p *Party) IsAttended(addr common.Address) bool {
	part, err := p.ParticipantOf(addr)
	return err == nil && part.Attended
}

func (p *Party) IsPaid(addr common.Address) bool {
	part, err := p.ParticipantOf(addr)
	return err == nil && part.Paid
}

func (p *Party) participantLocked(index uint64) (Participant, error) {
	holder, err := p.tickets.HolderOf(index)
	if err != nil {
		return Participant{}, err
	}
	entry := p.entries[index-1]
	return Participant{Index: index, Holder: holder, Attended: entry.attended, Paid: entry.paid}, nil
}

func (p *Party) isOwner(addr common.Address) bool {
	return addr == p.auth.Owner()
}

func (p *Party) requireOwner(caller common.Address, op string) error {
	if !p.isOwner(caller) {
		return apperrors.New(apperrors.CodeUnauthorized, fmt.Sprintf("only the owner can %s", op))
	}
	return nil
}

func (p *Party) requireOpen(op string) error {
	if p.state.Mode != ModeOpen {
		return apperrors.New(apperrors.CodeAlreadyEnded, fmt.Sprintf("cannot %s: party is %s", op, p.state.Mode))
	}
	return nil
}

// txn collects undo steps and records for one operation. Records are only
// published on commit.
type txn struct {
	p       *Party
	undo    []func()
	records []events.Record
}

func (p *Party) begin() *txn {
	return &txn{p: p}
}

func (t *txn) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *txn) emit(rec events.Record) {
	rec.PartyID = t.p.id
	rec.At = t.p.clock.Now()
	t.records = append(t.records, rec)
}

func (t *txn) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.records = nil
}

func (t *txn) commit(ctx context.Context) {
	p := t.p
	for _, rec := range t.records {
		if err := p.publisher.Publish(ctx, rec); err != nil {
			log.Printf("Error publishing %s record for party %s: %v", rec.Kind, p.id, err)
		}
	}
	if p.onCommit != nil {
		p.onCommit(ctx, p.snapshotLocked())
	}
}

// setPaid flips the paid flag of index inside t.
func (t *txn) setPaid(index uint64) {
	entry := &t.p.entries[index-1]
	entry.paid = true
	t.onRollback(func() { entry.paid = false })
}

func transferError(err error, op string) error {
	return apperrors.Wrap(apperrors.CodeTransferFailed, op, err)
}
