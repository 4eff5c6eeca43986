package ledger

import (
	"context"
	"encoding/json"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
)

var log = logging.Logger("ledger")

const (
	basisPoints = 10_000

	tokenConfigCacheSize = 256
)

// TokenConfig describes how a token deviates from standard ERC20 behaviour.
type TokenConfig struct {
	// SilentFailure makes rejected transfers return false instead of an error.
	SilentFailure bool
	// FeeBasisPoints is burned from every transfer, in 1/10000ths of the amount.
	FeeBasisPoints uint64
}

// Ledger is a datastore-backed multi-token ledger with ERC20 semantics:
// balances, allowances, total supply, and per-token transfer hooks.
type Ledger struct {
	ds datastore.Batching

	lk    sync.Mutex
	hooks map[address.Address]TransferHook

	configs *lru.Cache[address.Address, TokenConfig]
}

var _ TokenLedger = (*Ledger)(nil)

func New(dstore datastore.Batching) *Ledger {
	configs, err := lru.New[address.Address, TokenConfig](tokenConfigCacheSize)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}

	return &Ledger{
		ds:      namespace.Wrap(dstore, datastore.NewKey("/ledger")),
		hooks:   make(map[address.Address]TransferHook),
		configs: configs,
	}
}

func balanceKey(token, holder address.Address) datastore.Key {
	return datastore.NewKey("/balances").ChildString(token.String()).ChildString(holder.String())
}

func allowanceKey(token, owner, spender address.Address) datastore.Key {
	return datastore.NewKey("/allowances").ChildString(token.String()).ChildString(owner.String()).ChildString(spender.String())
}

func supplyKey(token address.Address) datastore.Key {
	return datastore.NewKey("/supply").ChildString(token.String())
}

func tokenKey(token address.Address) datastore.Key {
	return datastore.NewKey("/tokens").ChildString(token.String())
}

// RegisterToken stores the behaviour of a token. Unregistered tokens behave
// as standard ERC20 tokens.
func (l *Ledger) RegisterToken(ctx context.Context, token address.Address, cfg TokenConfig) error {
	if token == address.Undef {
		return ErrInvalidAddress
	}
	if cfg.FeeBasisPoints > basisPoints {
		return xerrors.Errorf("fee of %d basis points exceeds %d", cfg.FeeBasisPoints, basisPoints)
	}

	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	l.lk.Lock()
	defer l.lk.Unlock()
	if err := l.ds.Put(ctx, tokenKey(token), b); err != nil {
		return err
	}
	l.configs.Add(token, cfg)
	return nil
}

func (l *Ledger) TokenConfig(ctx context.Context, token address.Address) (TokenConfig, error) {
	if cfg, ok := l.configs.Get(token); ok {
		return cfg, nil
	}

	l.lk.Lock()
	defer l.lk.Unlock()

	var cfg TokenConfig
	b, err := l.ds.Get(ctx, tokenKey(token))
	if xerrors.Is(err, datastore.ErrNotFound) {
		l.configs.Add(token, cfg)
		return cfg, nil
	}
	if err != nil {
		return cfg, xerrors.Errorf("loading token config: %w", err)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, xerrors.Errorf("decoding token config: %w", err)
	}
	l.configs.Add(token, cfg)
	return cfg, nil
}

// SetHook installs a hook called after every transfer of token. A nil hook
// removes it. Hooks are not persisted.
func (l *Ledger) SetHook(token address.Address, hook TransferHook) {
	l.lk.Lock()
	defer l.lk.Unlock()

	if hook == nil {
		delete(l.hooks, token)
		return
	}
	l.hooks[token] = hook
}

func (l *Ledger) BalanceOf(ctx context.Context, token, holder address.Address) (abi.TokenAmount, error) {
	l.lk.Lock()
	defer l.lk.Unlock()
	return l.getAmount(ctx, balanceKey(token, holder))
}

func (l *Ledger) Allowance(ctx context.Context, token, owner, spender address.Address) (abi.TokenAmount, error) {
	l.lk.Lock()
	defer l.lk.Unlock()
	return l.getAmount(ctx, allowanceKey(token, owner, spender))
}

func (l *Ledger) TotalSupply(ctx context.Context, token address.Address) (abi.TokenAmount, error) {
	l.lk.Lock()
	defer l.lk.Unlock()
	return l.getAmount(ctx, supplyKey(token))
}

// Mint creates amount new tokens credited to `to`.
func (l *Ledger) Mint(ctx context.Context, token, to address.Address, amount abi.TokenAmount) error {
	if token == address.Undef || to == address.Undef {
		return ErrInvalidAddress
	}
	if amount.Nil() || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.lk.Lock()
	defer l.lk.Unlock()

	return l.commit(ctx, []delta{
		{key: balanceKey(token, to), amt: amount},
		{key: supplyKey(token), amt: amount},
	})
}

// Approve sets the amount spender may move out of owner's balance.
func (l *Ledger) Approve(ctx context.Context, token, owner, spender address.Address, amount abi.TokenAmount) error {
	if token == address.Undef || owner == address.Undef || spender == address.Undef {
		return ErrInvalidAddress
	}
	if amount.Nil() || amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	l.lk.Lock()
	defer l.lk.Unlock()

	key := allowanceKey(token, owner, spender)
	if amount.IsZero() {
		return l.ds.Delete(ctx, key)
	}
	return l.ds.Put(ctx, key, []byte(amount.String()))
}

func (l *Ledger) Transfer(ctx context.Context, token, from, to address.Address, amount abi.TokenAmount) (bool, error) {
	return l.move(ctx, token, address.Undef, from, to, amount)
}

func (l *Ledger) TransferFrom(ctx context.Context, token, operator, from, to address.Address, amount abi.TokenAmount) (bool, error) {
	if operator == address.Undef {
		return false, ErrInvalidAddress
	}
	return l.move(ctx, token, operator, from, to, amount)
}

// move applies a transfer, runs the token hook and reverts the transfer if
// the hook fails. An undefined operator means from is moving its own funds.
func (l *Ledger) move(ctx context.Context, token, operator, from, to address.Address, amount abi.TokenAmount) (bool, error) {
	if token == address.Undef || from == address.Undef || to == address.Undef {
		return false, ErrInvalidAddress
	}
	if amount.Nil() || amount.Sign() < 0 {
		return false, ErrInvalidAmount
	}

	cfg, err := l.TokenConfig(ctx, token)
	if err != nil {
		return false, err
	}

	fee := big.Div(big.Mul(amount, big.NewIntUnsigned(cfg.FeeBasisPoints)), big.NewInt(basisPoints))
	received := big.Sub(amount, fee)

	forward := []delta{
		{key: balanceKey(token, from), amt: amount.Neg(), short: ErrInsufficientBalance},
		{key: balanceKey(token, to), amt: received},
		{key: supplyKey(token), amt: fee.Neg()},
	}
	if operator != address.Undef {
		forward = append([]delta{
			{key: allowanceKey(token, from, operator), amt: amount.Neg(), short: ErrInsufficientAllowance},
		}, forward...)
	}

	l.lk.Lock()
	err = l.checkBalance(ctx, token, from, amount)
	if err == nil {
		err = l.commit(ctx, forward)
	}
	hook := l.hooks[token]
	l.lk.Unlock()

	if err != nil {
		if cfg.SilentFailure && isRejection(err) {
			log.Debugw("transfer rejected silently", "token", token, "from", from, "to", to, "amount", amount, "reason", err)
			return false, nil
		}
		return false, xerrors.Errorf("transfer of %s %s from %s to %s: %w", amount, token, from, to, err)
	}

	if hook == nil {
		return true, nil
	}

	herr := hook(ctx, token, from, to, amount)
	if herr == nil {
		return true, nil
	}

	reverse := make([]delta, len(forward))
	for i, d := range forward {
		reverse[i] = delta{key: d.key, amt: d.amt.Neg(), short: ErrInsufficientBalance}
	}

	l.lk.Lock()
	rerr := l.commit(ctx, reverse)
	l.lk.Unlock()
	if rerr != nil {
		log.Errorw("failed to revert transfer after hook failure", "token", token, "from", from, "to", to, "amount", amount, "hookError", herr, "error", rerr)
		return false, xerrors.Errorf("reverting transfer after hook failure (%s): %w", herr, rerr)
	}

	if cfg.SilentFailure {
		log.Debugw("transfer hook failed, reverted silently", "token", token, "error", herr)
		return false, nil
	}
	return false, xerrors.Errorf("transfer hook: %w", herr)
}

func isRejection(err error) bool {
	return xerrors.Is(err, ErrInsufficientBalance) || xerrors.Is(err, ErrInsufficientAllowance)
}

// checkBalance must be called with lk held.
func (l *Ledger) checkBalance(ctx context.Context, token, holder address.Address, amount abi.TokenAmount) error {
	bal, err := l.getAmount(ctx, balanceKey(token, holder))
	if err != nil {
		return err
	}
	if bal.LessThan(amount) {
		return ErrInsufficientBalance
	}
	return nil
}

type delta struct {
	key datastore.Key
	amt abi.TokenAmount
	// short is returned when applying amt would leave the entry negative
	short error
}

// commit applies all deltas in a single batch, or none of them. It must be
// called with lk held.
func (l *Ledger) commit(ctx context.Context, deltas []delta) error {
	merged := make(map[datastore.Key]abi.TokenAmount, len(deltas))
	order := make([]delta, 0, len(deltas))
	for _, d := range deltas {
		if cur, ok := merged[d.key]; ok {
			merged[d.key] = big.Add(cur, d.amt)
			continue
		}
		merged[d.key] = d.amt
		order = append(order, d)
	}

	b, err := l.ds.Batch(ctx)
	if err != nil {
		return xerrors.Errorf("opening batch: %w", err)
	}

	for _, d := range order {
		cur, err := l.getAmount(ctx, d.key)
		if err != nil {
			return err
		}
		next := big.Add(cur, merged[d.key])
		switch {
		case next.Sign() < 0:
			if d.short != nil {
				return d.short
			}
			return xerrors.Errorf("entry %s would become negative", d.key)
		case next.IsZero():
			err = b.Delete(ctx, d.key)
		default:
			err = b.Put(ctx, d.key, []byte(next.String()))
		}
		if err != nil {
			return xerrors.Errorf("staging %s: %w", d.key, err)
		}
	}

	return b.Commit(ctx)
}

func (l *Ledger) getAmount(ctx context.Context, key datastore.Key) (abi.TokenAmount, error) {
	b, err := l.ds.Get(ctx, key)
	if xerrors.Is(err, datastore.ErrNotFound) {
		return big.Zero(), nil
	}
	if err != nil {
		return big.Zero(), xerrors.Errorf("reading %s: %w", key, err)
	}
	v, err := big.FromString(string(b))
	if err != nil {
		return big.Zero(), xerrors.Errorf("decoding %s: %w", key, err)
	}
	return v, nil
}
