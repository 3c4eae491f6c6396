package parties

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/CytonicMC/Cyparty/access"
	"github.com/CytonicMC/Cyparty/assets"
	apperrors "github.com/CytonicMC/Cyparty/errors"
	"github.com/CytonicMC/Cyparty/events"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Store persists parties, the asset book and the factory settings.
type Store interface {
	SaveParty(ctx context.Context, snap Snapshot) error
	SaveBalances(ctx context.Context, snap assets.Snapshot) error
	SaveFactory(ctx context.Context, snap FactorySnapshot) error
}

// Defaults fill in zero fields of a deploy request.
type Defaults struct {
	Name          string
	Deposit       *big.Int
	Capacity      uint64
	CoolingPeriod time.Duration
}

// FactoryConfig configures a PartyRegistry.
type FactoryConfig struct {
	Owner        common.Address
	FeeRate      uint64
	BaseTokenURI string
	Defaults     Defaults
	Book         *assets.Book
	Store        Store
	Publisher    events.Publisher
	Clock        Clock
}

// FactorySnapshot is the persisted form of the factory settings.
type FactorySnapshot struct {
	Owner        string   `json:"owner"`
	Admins       []string `json:"admins,omitempty"`
	FeeRate      uint64   `json:"fee_rate"`
	BaseTokenURI string   `json:"base_token_uri"`
}

// DeployRequest describes a new party. Zero fields take the factory
// defaults; a zero Token means the native currency.
type DeployRequest struct {
	Name           string
	Deposit        *big.Int
	Capacity       uint64
	CoolingPeriod  time.Duration
	Token          common.Address
	TicketDelegate common.Address
}

// PartyRegistry is the factory and directory of every hosted party.
type PartyRegistry struct {
	mu           sync.Mutex
	parties      map[uuid.UUID]*Party
	access       map[uuid.UUID]*access.Registry
	order        []uuid.UUID
	admins       *access.Registry
	feeRate      uint64
	baseTokenURI string
	defaults     Defaults

	book      *assets.Book
	store     Store
	publisher events.Publisher
	clock     Clock
}

// NewPartyRegistry creates an empty registry owned by cfg.Owner.
func NewPartyRegistry(cfg FactoryConfig) (*PartyRegistry, error) {
	if cfg.FeeRate > FeeDenominator {
		return nil, apperrors.New(apperrors.CodeInvalidConfig, fmt.Sprintf("fee rate %d exceeds %d", cfg.FeeRate, FeeDenominator))
	}
	if cfg.Book == nil {
		return nil, apperrors.New(apperrors.CodeInvalidConfig, "asset book is required")
	}
	admins, err := access.NewRegistry(cfg.Owner)
	if err != nil {
		return nil, err
	}
	r := &PartyRegistry{
		parties:      make(map[uuid.UUID]*Party),
		access:       make(map[uuid.UUID]*access.Registry),
		admins:       admins,
		feeRate:      cfg.FeeRate,
		baseTokenURI: cfg.BaseTokenURI,
		defaults:     cfg.Defaults,
		book:         cfg.Book,
		store:        cfg.Store,
		publisher:    cfg.Publisher,
		clock:        cfg.Clock,
	}
	if r.publisher == nil {
		r.publisher = events.Discard
	}
	if r.clock == nil {
		r.clock = SystemClock()
	}
	admins.OnChange(func(c access.Change) {
		r.publish(context.Background(), uuid.Nil, c)
		r.saveFactory(context.Background())
	})
	return r, nil
}

// Admins is the factory's own owner and admin set.
func (r *PartyRegistry) Admins() *access.Registry { return r.admins }

// Book returns the asset book backing every party.
func (r *PartyRegistry) Book() *assets.Book { return r.book }

func (r *PartyRegistry) FeeRate() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.feeRate
}

func (r *PartyRegistry) BaseTokenURI() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.baseTokenURI
}

// ChangeFeeRate sets the fee rate given to parties deployed from now on.
func (r *PartyRegistry) ChangeFeeRate(ctx context.Context, caller common.Address, rate uint64) error {
	if !r.admins.IsAdmin(caller) {
		return apperrors.New(apperrors.CodeUnauthorized, "only a factory admin can change the fee rate")
	}
	if rate > FeeDenominator {
		return apperrors.New(apperrors.CodeInvalidConfig, fmt.Sprintf("fee rate %d exceeds %d", rate, FeeDenominator))
	}
	r.mu.Lock()
	r.feeRate = rate
	r.mu.Unlock()

	log.Printf("Fee rate changed to %d by %s", rate, caller.Hex())
	r.emit(ctx, events.Record{Kind: events.KindFeeChange, Actor: caller, Index: rate})
	r.saveFactory(ctx)
	return nil
}

// ChangeBaseTokenURI sets the base every ticket URI is rendered under.
func (r *PartyRegistry) ChangeBaseTokenURI(ctx context.Context, caller common.Address, uri string) error {
	if !r.admins.IsAdmin(caller) {
		return apperrors.New(apperrors.CodeUnauthorized, "only a factory admin can change the base token URI")
	}
	r.mu.Lock()
	r.baseTokenURI = uri
	r.mu.Unlock()

	log.Printf("Base token URI changed to '%s' by %s", uri, caller.Hex())
	r.emit(ctx, events.Record{Kind: events.KindBaseTokenURIChange, Actor: caller, Detail: uri})
	r.saveFactory(ctx)
	return nil
}

// Deploy creates a party owned by caller.
func (r *PartyRegistry) Deploy(ctx context.Context, caller common.Address, req DeployRequest) (*Party, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg := Config{
		Name:           strings.TrimSpace(req.Name),
		Deposit:        req.Deposit,
		Capacity:       req.Capacity,
		CoolingPeriod:  req.CoolingPeriod,
		Owner:          caller,
		FeeRate:        r.feeRate,
		Asset:          assets.TokenAsset(req.Token),
		TicketDelegate: req.TicketDelegate,
	}
	if cfg.Name == "" {
		cfg.Name = r.defaults.Name
	}
	if cfg.Deposit == nil || cfg.Deposit.Sign() == 0 {
		cfg.Deposit = r.defaults.Deposit
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = r.defaults.Capacity
	}
	if cfg.CoolingPeriod == 0 {
		cfg.CoolingPeriod = r.defaults.CoolingPeriod
	}

	id := uuid.New()
	p, err := r.buildLocked(id, cfg, nil)
	if err != nil {
		return nil, err
	}
	r.addLocked(p)

	log.Printf("Deployed party %s (%s) for %s", id, cfg.Name, caller.Hex())
	r.emit(ctx, events.Record{
		Kind:    events.KindNewParty,
		PartyID: id,
		Actor:   caller,
		Subject: events.AddressPtr(p.Address()),
		Amount:  new(big.Int).Set(cfg.Deposit),
		Detail:  cfg.Name,
	})
	r.persist(ctx, p.Snapshot())
	return p, nil
}

// buildLocked constructs a party with its own access registry. A non-nil
// snap restores it instead of creating it.
func (r *PartyRegistry) buildLocked(id uuid.UUID, cfg Config, snap *Snapshot) (*Party, error) {
	acl, err := access.NewRegistry(cfg.Owner)
	if err != nil {
		return nil, err
	}
	deps := Deps{
		Transport:  r.book.Transport(cfg.Asset, LedgerAddress(id)),
		Authorizer: acl,
		Publisher:  r.publisher,
		Clock:      r.clock,
		URIs:       r,
		OnCommit:   r.persist,
	}

	var p *Party
	if snap != nil {
		acl.Restore(cfg.Owner, AdminsFromSnapshot(*snap))
		p, err = Restore(*snap, deps)
	} else {
		p, err = New(id, cfg, deps)
	}
	if err != nil {
		return nil, err
	}
	acl.OnChange(func(c access.Change) {
		r.publish(context.Background(), id, c)
		r.persist(context.Background(), p.Snapshot())
	})
	r.access[id] = acl
	return p, nil
}

func (r *PartyRegistry) addLocked(p *Party) {
	r.parties[p.ID()] = p
	r.order = append(r.order, p.ID())
}

// GetParty returns the party with id, or nil.
func (r *PartyRegistry) GetParty(id uuid.UUID) *Party {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.parties[id]
}

// Lookup is GetParty with a PartyNotFound error.
func (r *PartyRegistry) Lookup(id uuid.UUID) (*Party, error) {
	p := r.GetParty(id)
	if p == nil {
		return nil, apperrors.New(apperrors.CodePartyNotFound, fmt.Sprintf("party %s does not exist", id))
	}
	return p, nil
}

// PartyAccess returns the owner and admin set of party id.
func (r *PartyRegistry) PartyAccess(id uuid.UUID) (*access.Registry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acl, ok := r.access[id]
	if !ok {
		return nil, apperrors.New(apperrors.CodePartyNotFound, fmt.Sprintf("party %s does not exist", id))
	}
	return acl, nil
}

// GetAllParties returns every party in deployment order.
func (r *PartyRegistry) GetAllParties() []*Party {
	r.mu.Lock()
	defer r.mu.Unlock()
	parties := make([]*Party, 0, len(r.order))
	for _, id := range r.order {
		parties = append(parties, r.parties[id])
	}
	return parties
}

// Count returns the number of hosted parties.
func (r *PartyRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// FactorySnapshot captures the factory settings.
func (r *PartyRegistry) FactorySnapshot() FactorySnapshot {
	r.mu.Lock()
	snap := FactorySnapshot{FeeRate: r.feeRate, BaseTokenURI: r.baseTokenURI}
	r.mu.Unlock()

	snap.Owner = r.admins.Owner().Hex()
	for _, admin := range r.admins.Admins() {
		snap.Admins = append(snap.Admins, admin.Hex())
	}
	return snap
}

// Restore loads persisted state into an empty registry. The book is
// restored first so every party sees its escrowed balance.
func (r *PartyRegistry) Restore(factory *FactorySnapshot, balances *assets.Snapshot, snaps []Snapshot) error {
	if balances != nil {
		if err := r.book.Restore(*balances); err != nil {
			return fmt.Errorf("restore balances: %w", err)
		}
	}
	if factory != nil {
		admins := make([]common.Address, 0, len(factory.Admins))
		for _, admin := range factory.Admins {
			admins = append(admins, common.HexToAddress(admin))
		}
		r.admins.Restore(common.HexToAddress(factory.Owner), admins)
		r.mu.Lock()
		r.feeRate = factory.FeeRate
		r.baseTokenURI = factory.BaseTokenURI
		r.mu.Unlock()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range snaps {
		snap := snaps[i]
		id, err := uuid.Parse(snap.ID)
		if err != nil {
			return fmt.Errorf("parse party id %q: %w", snap.ID, err)
		}
		if _, exists := r.parties[id]; exists {
			return fmt.Errorf("party %s restored twice", id)
		}
		cfg, err := ConfigFromSnapshot(snap)
		if err != nil {
			return fmt.Errorf("restore party %s: %w", id, err)
		}
		p, err := r.buildLocked(id, cfg, &snap)
		if err != nil {
			return fmt.Errorf("restore party %s: %w", id, err)
		}
		r.addLocked(p)
	}
	log.Printf("Restored %d parties", len(snaps))
	return nil
}

func (r *PartyRegistry) publish(ctx context.Context, partyID uuid.UUID, c access.Change) {
	kind := events.KindAdminGranted
	switch c.Kind {
	case access.AdminRevoked:
		kind = events.KindAdminRevoked
	case access.OwnershipTransferred:
		kind = events.KindOwnershipTransferred
	}
	r.emit(ctx, events.Record{Kind: kind, PartyID: partyID, Actor: c.Actor, Subject: events.AddressPtr(c.Subject)})
}

func (r *PartyRegistry) emit(ctx context.Context, rec events.Record) {
	rec.At = r.clock.Now()
	if err := r.publisher.Publish(ctx, rec); err != nil {
		log.Printf("Error publishing %s record: %v", rec.Kind, err)
	}
}

func (r *PartyRegistry) persist(ctx context.Context, snap Snapshot) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveParty(ctx, snap); err != nil {
		log.Printf("Error saving party %s: %v", snap.ID, err)
	}
	if err := r.store.SaveBalances(ctx, r.book.Snapshot()); err != nil {
		log.Printf("Error saving balances: %v", err)
	}
}

func (r *PartyRegistry) saveFactory(ctx context.Context) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveFactory(ctx, r.FactorySnapshot()); err != nil {
		log.Printf("Error saving factory settings: %v", err)
	}
}
