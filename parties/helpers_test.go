package parties

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/CytonicMC/Cyparty/assets"
	apperrors "github.com/CytonicMC/Cyparty/errors"
	"github.com/CytonicMC/Cyparty/events"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	admin = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	alice = common.HexToAddress("0x0000000000000000000000000000000000a11ce0")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x0000000000000000000000000000000000ca2010")
	dave  = common.HexToAddress("0x000000000000000000000000000000000000da7e")
	erin  = common.HexToAddress("0x00000000000000000000000000000000000e2100")
	token = common.HexToAddress("0x0000000000000000000000000000000000007070")
)

var deposit = big.NewInt(100)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyTransport fails every Push while failPush is set.
type flakyTransport struct {
	assets.Transport
	failPush bool
}

func (f *flakyTransport) Push(ctx context.Context, transfers ...assets.Transfer) error {
	if f.failPush {
		return errors.New("recipient rejected the payment")
	}
	return f.Transport.Push(ctx, transfers...)
}

type fixture struct {
	party     *Party
	book      *assets.Book
	clock     *fakeClock
	records   *events.Recorder
	transport *flakyTransport
}

type fixtureOption func(*Config)

func withCapacity(n uint64) fixtureOption { return func(c *Config) { c.Capacity = n } }
func withFeeRate(n uint64) fixtureOption  { return func(c *Config) { c.FeeRate = n } }
func withToken() fixtureOption            { return func(c *Config) { c.Asset = assets.TokenAsset(token) } }

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := Config{
		Name:          "Launch party",
		Deposit:       new(big.Int).Set(deposit),
		Capacity:      20,
		CoolingPeriod: 7 * 24 * time.Hour,
		Owner:         owner,
		FeeRate:       10,
		Asset:         assets.Native(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	book := assets.NewBook()
	for _, addr := range []common.Address{owner, admin, alice, bob, carol, dave, erin} {
		require.NoError(t, book.Mint(cfg.Asset, addr, big.NewInt(10_000)))
	}
	id := uuid.New()
	transport := &flakyTransport{Transport: book.Transport(cfg.Asset, LedgerAddress(id))}
	clock := newFakeClock()
	records := &events.Recorder{}

	p, err := New(id, cfg, Deps{Transport: transport, Publisher: records, Clock: clock})
	require.NoError(t, err)
	return &fixture{party: p, book: book, clock: clock, records: records, transport: transport}
}

func (f *fixture) register(t *testing.T, addrs ...common.Address) {
	t.Helper()
	for _, addr := range addrs {
		attached := f.party.Config().Deposit
		if !f.party.Config().Asset.IsNative() {
			require.NoError(t, f.book.Approve(f.party.Config().Asset, addr, f.party.Address(), attached))
			attached = nil
		}
		_, err := f.party.Register(context.Background(), addr, attached)
		require.NoError(t, err)
	}
}

func (f *fixture) balance(t *testing.T) *big.Int {
	t.Helper()
	balance, err := f.party.Balance(context.Background())
	require.NoError(t, err)
	return balance
}

func (f *fixture) holdings(addr common.Address) int64 {
	return f.book.BalanceOf(f.party.Config().Asset, addr).Int64()
}

func requireCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, apperrors.CodeOf(err), "unexpected error: %v", err)
}
