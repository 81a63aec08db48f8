package in_memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/olyamironova/escrow-book/internal/port"
	"github.com/shopspring/decimal"
)

var _ port.Escrow = (*TokenLedger)(nil)

// Transfer describes one applied balance movement.
type Transfer struct {
	Asset  common.Address
	From   common.Address
	To     common.Address
	Amount decimal.Decimal
}

// TransferHook runs after a transfer is applied, with the caller's context.
// Returning an error makes the transfer fail, like a token that reverts.
type TransferHook func(ctx context.Context, t Transfer) error

// TokenLedger is a fungible-token ledger with allowances granted to a single
// escrow account. Transfers made through a tx apply immediately and are
// undone on Rollback.
type TokenLedger struct {
	mu         sync.Mutex
	escrow     common.Address
	balances   map[common.Address]map[common.Address]decimal.Decimal // asset -> holder
	allowances map[common.Address]map[common.Address]decimal.Decimal // asset -> owner
	hook       TransferHook
}

func NewTokenLedger(escrow common.Address) *TokenLedger {
	return &TokenLedger{
		escrow:     escrow,
		balances:   make(map[common.Address]map[common.Address]decimal.Decimal),
		allowances: make(map[common.Address]map[common.Address]decimal.Decimal),
	}
}

func (l *TokenLedger) EscrowAccount() common.Address { return l.escrow }

// OnTransfer installs a hook called after every transfer.
func (l *TokenLedger) OnTransfer(hook TransferHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hook = hook
}

func (l *TokenLedger) Mint(asset, to common.Address, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.add(l.balances, asset, to, amount)
}

// Approve sets the amount of asset the escrow account may move for owner.
func (l *TokenLedger) Approve(asset, owner common.Address, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allowances[asset] == nil {
		l.allowances[asset] = make(map[common.Address]decimal.Decimal)
	}
	l.allowances[asset][owner] = amount
}

func (l *TokenLedger) BalanceOf(asset, holder common.Address) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[asset][holder]
}

func (l *TokenLedger) Allowance(asset, owner common.Address) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[asset][owner]
}

func (l *TokenLedger) Begin(ctx context.Context) (port.EscrowTx, error) {
	return &ledgerTx{ledger: l}, nil
}

func (l *TokenLedger) add(book map[common.Address]map[common.Address]decimal.Decimal, asset, who common.Address, delta decimal.Decimal) {
	if book[asset] == nil {
		book[asset] = make(map[common.Address]decimal.Decimal)
	}
	book[asset][who] = book[asset][who].Add(delta)
}

type entry struct {
	allowance bool
	asset     common.Address
	who       common.Address
	delta     decimal.Decimal
}

type ledgerTx struct {
	ledger  *TokenLedger
	journal []entry
	closed  bool
}

func (t *ledgerTx) Pull(ctx context.Context, asset, from common.Address, amount decimal.Decimal) error {
	return t.transfer(ctx, asset, from, t.ledger.escrow, amount, true)
}

func (t *ledgerTx) Push(ctx context.Context, asset, to common.Address, amount decimal.Decimal) error {
	return t.transfer(ctx, asset, t.ledger.escrow, to, amount, false)
}

func (t *ledgerTx) Move(ctx context.Context, asset, from, to common.Address, amount decimal.Decimal) error {
	return t.transfer(ctx, asset, from, to, amount, true)
}

func (t *ledgerTx) transfer(ctx context.Context, asset, from, to common.Address, amount decimal.Decimal, spend bool) error {
	if t.closed {
		return errors.New("escrow tx closed")
	}
	if amount.IsNegative() {
		return fmt.Errorf("negative transfer amount %s", amount)
	}
	l := t.ledger
	l.mu.Lock()
	if spend && l.allowances[asset][from].LessThan(amount) {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s of %s approved, %s needed",
			domain.ErrInsufficientAllowance, from.Hex(), asset.Hex(), amount)
	}
	if l.balances[asset][from].LessThan(amount) {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s holds %s of %s, %s needed",
			domain.ErrInsufficientBalance, from.Hex(), l.balances[asset][from], asset.Hex(), amount)
	}
	t.apply(entry{asset: asset, who: from, delta: amount.Neg()})
	t.apply(entry{asset: asset, who: to, delta: amount})
	if spend {
		t.apply(entry{allowance: true, asset: asset, who: from, delta: amount.Neg()})
	}
	hook := l.hook
	l.mu.Unlock()

	if hook != nil {
		return hook(ctx, Transfer{Asset: asset, From: from, To: to, Amount: amount})
	}
	return nil
}

// apply must be called with the ledger lock held.
func (t *ledgerTx) apply(e entry) {
	book := t.ledger.balances
	if e.allowance {
		book = t.ledger.allowances
	}
	t.ledger.add(book, e.asset, e.who, e.delta)
	t.journal = append(t.journal, e)
}

func (t *ledgerTx) Commit(ctx context.Context) error {
	if t.closed {
		return errors.New("escrow tx closed")
	}
	t.closed = true
	t.journal = nil
	return nil
}

func (t *ledgerTx) Rollback(ctx context.Context) error {
	if t.closed {
		return nil
	}
	t.closed = true
	l := t.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(t.journal) - 1; i >= 0; i-- {
		e := t.journal[i]
		book := l.balances
		if e.allowance {
			book = l.allowances
		}
		l.add(book, e.asset, e.who, e.delta.Neg())
	}
	t.journal = nil
	return nil
}
