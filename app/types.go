package app

import (
	"context"
	"fmt"
	"log"

	"github.com/CytonicMC/Cyparty/assets"
	"github.com/CytonicMC/Cyparty/config"
	"github.com/CytonicMC/Cyparty/events"
	"github.com/CytonicMC/Cyparty/metrics"
	"github.com/CytonicMC/Cyparty/parties"
	"github.com/CytonicMC/Cyparty/store"
	"github.com/ethereum/go-ethereum/common"
)

type Cyparty struct {
	Config        config.Config
	Store         *store.Store
	PartyRegistry *parties.PartyRegistry
}

// New opens the store at cfg.DBPath and rebuilds the registry from it.
// Records go to the store journal, the metrics and every extra publisher.
// Stored factory settings win over cfg; admins are granted on top.
func New(ctx context.Context, cfg config.Config, admins []common.Address, publishers ...events.Publisher) (*Cyparty, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	owner, _ := cfg.OwnerAddress()
	defaults, _ := cfg.Defaults()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	fanout := events.Fanout{st, metrics.Records}
	fanout = append(fanout, publishers...)

	registry, err := parties.NewPartyRegistry(parties.FactoryConfig{
		Owner:        owner,
		FeeRate:      cfg.FeeRate,
		BaseTokenURI: cfg.BaseTokenURI,
		Defaults:     defaults,
		Book:         assets.NewBook(),
		Store:        st,
		Publisher:    fanout,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if err := restore(ctx, st, registry); err != nil {
		_ = st.Close()
		return nil, err
	}
	metrics.PartyCount.Set(float64(registry.Count()))

	if len(admins) > 0 {
		factoryAdmins := registry.Admins()
		if err := factoryAdmins.Grant(factoryAdmins.Owner(), admins...); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("seed admins: %w", err)
		}
		log.Printf("Seeded %d factory admins", len(admins))
	}

	return &Cyparty{Config: cfg, Store: st, PartyRegistry: registry}, nil
}

func restore(ctx context.Context, st *store.Store, registry *parties.PartyRegistry) error {
	factory, err := st.LoadFactory(ctx)
	if err != nil {
		return err
	}
	balances, err := st.LoadBalances(ctx)
	if err != nil {
		return err
	}
	snaps, err := st.ListParties(ctx, "")
	if err != nil {
		return err
	}
	return registry.Restore(factory, balances, snaps)
}

// Close releases the store.
func (c *Cyparty) Close() error {
	return c.Store.Close()
}
