package assets

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Book is an in-memory multi-asset balance sheet.
type Book struct {
	mu         sync.Mutex
	balances   map[Asset]map[common.Address]*big.Int
	allowances map[Asset]map[allowanceKey]*big.Int
	observers  []func(asset Asset, from common.Address, t Transfer)
}

// NewBook creates an empty Book.
func NewBook() *Book {
	return &Book{
		balances:   make(map[Asset]map[common.Address]*big.Int),
		allowances: make(map[Asset]map[allowanceKey]*big.Int),
	}
}

// OnTransfer registers fn to be called after every committed movement of
// value. Observers run after the book lock is released.
func (b *Book) OnTransfer(fn func(asset Asset, from common.Address, t Transfer)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, fn)
}

// Mint credits amount of asset to to out of thin air. Used to fund test and
// development accounts.
func (b *Book) Mint(asset Asset, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(asset, to, amount)
	return nil
}

// BalanceOf returns the balance of addr in asset.
func (b *Book) BalanceOf(asset Asset, addr common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balanceInternal(asset, addr))
}

// Approve sets the allowance spender may pull from owner.
func (b *Book) Approve(asset Asset, owner, spender common.Address, amount *big.Int) error {
	if asset.IsNative() {
		return fmt.Errorf("native currency has no allowances")
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.allowances[asset]
	if !ok {
		set = make(map[allowanceKey]*big.Int)
		b.allowances[asset] = set
	}
	set[allowanceKey{owner: owner, spender: spender}] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns what spender may still pull from owner.
func (b *Book) Allowance(asset Asset, owner, spender common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.allowances[asset][allowanceKey{owner: owner, spender: spender}]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Send moves amount of asset between two accounts.
func (b *Book) Send(asset Asset, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	if b.balanceInternal(asset, from).Cmp(amount) < 0 {
		b.mu.Unlock()
		return ErrInsufficientBalance
	}
	b.debit(asset, from, amount)
	b.credit(asset, to, amount)
	observers := b.observers
	b.mu.Unlock()

	b.emit(observers, asset, from, []Transfer{{To: to, Amount: amount}})
	return nil
}

// Transport returns a Transport that holds funds for account in asset.
func (b *Book) Transport(asset Asset, account common.Address) *BookTransport {
	return &BookTransport{book: b, asset: asset, account: account}
}

func (b *Book) balanceInternal(asset Asset, addr common.Address) *big.Int {
	if v, ok := b.balances[asset][addr]; ok {
		return v
	}
	return new(big.Int)
}

func (b *Book) credit(asset Asset, addr common.Address, amount *big.Int) {
	set, ok := b.balances[asset]
	if !ok {
		set = make(map[common.Address]*big.Int)
		b.balances[asset] = set
	}
	current, ok := set[addr]
	if !ok {
		current = new(big.Int)
		set[addr] = current
	}
	current.Add(current, amount)
}

// debit assumes the caller already checked the balance covers amount.
func (b *Book) debit(asset Asset, addr common.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	current := b.balances[asset][addr]
	current.Sub(current, amount)
}

func (b *Book) emit(observers []func(Asset, common.Address, Transfer), asset Asset, from common.Address, transfers []Transfer) {
	for _, t := range transfers {
		for _, fn := range observers {
			fn(asset, from, t)
		}
	}
}

// BookTransport is the Transport a ledger uses against a Book.
type BookTransport struct {
	book    *Book
	asset   Asset
	account common.Address
}

var _ Transport = (*BookTransport)(nil)

func (t *BookTransport) Asset() Asset { return t.asset }

// Account returns the address funds are held under.
func (t *BookTransport) Account() common.Address { return t.account }

func (t *BookTransport) Pull(ctx context.Context, from common.Address, attached *big.Int, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if attached == nil {
		attached = new(big.Int)
	}

	b := t.book
	b.mu.Lock()
	if t.asset.IsNative() {
		if attached.Cmp(amount) != 0 {
			b.mu.Unlock()
			return fmt.Errorf("%w: attached %s, required %s", ErrWrongAmount, attached, amount)
		}
	} else {
		if attached.Sign() != 0 {
			b.mu.Unlock()
			return fmt.Errorf("%w: token deposits cannot carry native value", ErrWrongAmount)
		}
		key := allowanceKey{owner: from, spender: t.account}
		allowance, ok := b.allowances[t.asset][key]
		if !ok || allowance.Cmp(amount) < 0 {
			b.mu.Unlock()
			return ErrInsufficientAllowance
		}
	}
	if b.balanceInternal(t.asset, from).Cmp(amount) < 0 {
		b.mu.Unlock()
		return ErrInsufficientBalance
	}
	if !t.asset.IsNative() {
		allowance := b.allowances[t.asset][allowanceKey{owner: from, spender: t.account}]
		allowance.Sub(allowance, amount)
	}
	b.debit(t.asset, from, amount)
	b.credit(t.asset, t.account, amount)
	observers := b.observers
	b.mu.Unlock()

	b.emit(observers, t.asset, from, []Transfer{{To: t.account, Amount: amount}})
	return nil
}

func (t *BookTransport) Push(ctx context.Context, transfers ...Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, tr := range transfers {
		if tr.Amount == nil || tr.Amount.Sign() < 0 {
			return ErrInvalidAmount
		}
	}
	total := Sum(transfers)

	b := t.book
	b.mu.Lock()
	if b.balanceInternal(t.asset, t.account).Cmp(total) < 0 {
		b.mu.Unlock()
		return fmt.Errorf("%w: pushing %s", ErrInsufficientBalance, total)
	}
	var sent []Transfer
	for _, tr := range transfers {
		if tr.Amount.Sign() == 0 {
			continue
		}
		b.debit(t.asset, t.account, tr.Amount)
		b.credit(t.asset, tr.To, tr.Amount)
		sent = append(sent, tr)
	}
	observers := b.observers
	b.mu.Unlock()

	b.emit(observers, t.asset, t.account, sent)
	return nil
}

func (t *BookTransport) Balance(ctx context.Context) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.book.BalanceOf(t.asset, t.account), nil
}

// Entry is one persisted balance or allowance.
type Entry struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount"`
}

// Snapshot is the persisted form of a Book.
type Snapshot struct {
	Balances   []Entry `json:"balances"`
	Allowances []Entry `json:"allowances"`
}

// Snapshot captures every non-zero balance and allowance in a stable order.
func (b *Book) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	var snap Snapshot
	for asset, set := range b.balances {
		for addr, amount := range set {
			if amount.Sign() == 0 {
				continue
			}
			snap.Balances = append(snap.Balances, Entry{Token: asset.Token.Hex(), Owner: addr.Hex(), Amount: amount.String()})
		}
	}
	for asset, set := range b.allowances {
		for key, amount := range set {
			if amount.Sign() == 0 {
				continue
			}
			snap.Allowances = append(snap.Allowances, Entry{
				Token: asset.Token.Hex(), Owner: key.owner.Hex(), Spender: key.spender.Hex(), Amount: amount.String(),
			})
		}
	}
	sortEntries(snap.Balances)
	sortEntries(snap.Allowances)
	return snap
}

// Restore replaces the book contents with snap.
func (b *Book) Restore(snap Snapshot) error {
	balances := make(map[Asset]map[common.Address]*big.Int)
	allowances := make(map[Asset]map[allowanceKey]*big.Int)
	for _, e := range snap.Balances {
		amount, ok := new(big.Int).SetString(e.Amount, 10)
		if !ok {
			return fmt.Errorf("invalid balance amount %q", e.Amount)
		}
		asset := TokenAsset(common.HexToAddress(e.Token))
		if balances[asset] == nil {
			balances[asset] = make(map[common.Address]*big.Int)
		}
		balances[asset][common.HexToAddress(e.Owner)] = amount
	}
	for _, e := range snap.Allowances {
		amount, ok := new(big.Int).SetString(e.Amount, 10)
		if !ok {
			return fmt.Errorf("invalid allowance amount %q", e.Amount)
		}
		asset := TokenAsset(common.HexToAddress(e.Token))
		if allowances[asset] == nil {
			allowances[asset] = make(map[allowanceKey]*big.Int)
		}
		allowances[asset][allowanceKey{owner: common.HexToAddress(e.Owner), spender: common.HexToAddress(e.Spender)}] = amount
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances = balances
	b.allowances = allowances
	return nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Token != entries[j].Token {
			return entries[i].Token < entries[j].Token
		}
		if entries[i].Owner != entries[j].Owner {
			return entries[i].Owner < entries[j].Owner
		}
		return entries[i].Spender < entries[j].Spender
	})
}
