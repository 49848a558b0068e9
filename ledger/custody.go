package ledger

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	errNilCustodyState = errors.New("custody ledger: state not configured")

	// ErrCollectionNotFound is returned when the collection symbol is
	// unknown to the custody ledger.
	ErrCollectionNotFound = errors.New("custody ledger: collection not found")

	// ErrNotApproved is returned when the exchange attempts to move assets
	// of an owner who has not approved it (or revoked approval since).
	ErrNotApproved = errors.New("custody ledger: exchange not approved by owner")

	// ErrInsufficientAssets is returned when a transfer exceeds the
	// sender's holding.
	ErrInsufficientAssets = errors.New("custody ledger: insufficient asset balance")
)

// Collection describes one asset family: exclusive collections carry
// single-unit assets (at most one unit per asset identifier in existence),
// quantity-bearing collections allow fungible multi-unit assets.
type Collection struct {
	Symbol    string `json:"symbol"`
	Exclusive bool   `json:"exclusive"`
	CreatedAt int64  `json:"createdAt"`
}

type custodyState interface {
	CollectionGet(symbol string) (*Collection, bool, error)
	CollectionPut(*Collection) error
	HoldingGet(symbol string, assetID uint64, owner [20]byte) (*big.Int, error)
	HoldingPut(symbol string, assetID uint64, owner [20]byte, quantity *big.Int) error
	ApprovalGet(symbol string, owner [20]byte) (bool, error)
	ApprovalPut(symbol string, owner [20]byte, approved bool) error
	CreatorGet(symbol string, assetID uint64) ([20]byte, bool, error)
	CreatorPut(symbol string, assetID uint64, creator [20]byte) error
	SupplyGet(symbol string, assetID uint64) (*big.Int, error)
	SupplyPut(symbol string, assetID uint64, supply *big.Int) error
}

// CustodyLedger owns asset ownership and exchange-approval state. The market
// engine reads authorization through it on every dependent operation and never
// caches the answer: owners can revoke between listing and settlement.
type CustodyLedger struct {
	state custodyState
}

// NewCustodyLedger creates a custody ledger over the given state backend.
func NewCustodyLedger(state custodyState) *CustodyLedger {
	return &CustodyLedger{state: state}
}

func (l *CustodyLedger) ready() error {
	if l == nil || l.state == nil {
		return errNilCustodyState
	}
	return nil
}

func (l *CustodyLedger) collection(symbol string) (*Collection, error) {
	col, ok, err := l.state.CollectionGet(symbol)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, symbol)
	}
	return col, nil
}

// CreateCollection registers a new asset family. Re-registering an existing
// symbol fails rather than silently redefining exclusivity.
func (l *CustodyLedger) CreateCollection(symbol string, exclusive bool, now int64) error {
	if err := l.ready(); err != nil {
		return err
	}
	if _, ok, err := l.state.CollectionGet(symbol); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("custody ledger: collection %s already exists", symbol)
	}
	return l.state.CollectionPut(&Collection{Symbol: symbol, Exclusive: exclusive, CreatedAt: now})
}

// Mint issues quantity units of an asset to an owner and records the creator
// as the asset's designated royalty recipient on first issue. Exclusive
// collections cap total supply per asset at one unit.
func (l *CustodyLedger) Mint(to [20]byte, symbol string, assetID uint64, quantity *big.Int, creator [20]byte) error {
	if err := l.ready(); err != nil {
		return err
	}
	col, err := l.collection(symbol)
	if err != nil {
		return err
	}
	if quantity == nil || quantity.Sign() <= 0 {
		return fmt.Errorf("custody ledger: mint quantity must be positive")
	}
	supply, err := l.state.SupplyGet(symbol, assetID)
	if err != nil {
		return err
	}
	newSupply := new(big.Int).Add(supply, quantity)
	if col.Exclusive && newSupply.Cmp(big.NewInt(1)) > 0 {
		return fmt.Errorf("custody ledger: exclusive asset %s/%d already issued", symbol, assetID)
	}
	if supply.Sign() == 0 {
		if err := l.state.CreatorPut(symbol, assetID, creator); err != nil {
			return err
		}
	}
	holding, err := l.state.HoldingGet(symbol, assetID, to)
	if err != nil {
		return err
	}
	if err := l.state.HoldingPut(symbol, assetID, to, new(big.Int).Add(holding, quantity)); err != nil {
		return err
	}
	return l.state.SupplyPut(symbol, assetID, newSupply)
}

// SetApproval grants or revokes the exchange's authority to move the owner's
// assets in the collection.
func (l *CustodyLedger) SetApproval(owner [20]byte, symbol string, approved bool) error {
	if err := l.ready(); err != nil {
		return err
	}
	if _, err := l.collection(symbol); err != nil {
		return err
	}
	return l.state.ApprovalPut(symbol, owner, approved)
}

// IsAuthorized reports whether the owner has approved the exchange for the
// collection.
func (l *CustodyLedger) IsAuthorized(owner [20]byte, symbol string) (bool, error) {
	if err := l.ready(); err != nil {
		return false, err
	}
	if _, err := l.collection(symbol); err != nil {
		return false, err
	}
	return l.state.ApprovalGet(symbol, owner)
}

// BalanceOf returns the units of the asset held by the owner.
func (l *CustodyLedger) BalanceOf(owner [20]byte, symbol string, assetID uint64) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.state.HoldingGet(symbol, assetID, owner)
}

// Exclusive reports whether the collection carries single-unit assets.
func (l *CustodyLedger) Exclusive(symbol string) (bool, error) {
	if err := l.ready(); err != nil {
		return false, err
	}
	col, err := l.collection(symbol)
	if err != nil {
		return false, err
	}
	return col.Exclusive, nil
}

// Creator resolves the designated royalty recipient for an asset.
func (l *CustodyLedger) Creator(symbol string, assetID uint64) ([20]byte, bool, error) {
	if err := l.ready(); err != nil {
		return [20]byte{}, false, err
	}
	return l.state.CreatorGet(symbol, assetID)
}

// Transfer moves quantity units between addresses on behalf of the exchange.
// The sender's approval is checked at call time, not at listing time, so a
// revocation between bid and settlement surfaces here.
func (l *CustodyLedger) Transfer(from, to [20]byte, symbol string, assetID uint64, quantity *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	col, err := l.collection(symbol)
	if err != nil {
		return err
	}
	if quantity == nil || quantity.Sign() <= 0 {
		return fmt.Errorf("custody ledger: transfer quantity must be positive")
	}
	if col.Exclusive && quantity.Cmp(big.NewInt(1)) != 0 {
		return fmt.Errorf("custody ledger: exclusive assets move one unit at a time")
	}
	approved, err := l.state.ApprovalGet(symbol, from)
	if err != nil {
		return err
	}
	if !approved {
		return fmt.Errorf("%w: %s", ErrNotApproved, symbol)
	}
	fromHolding, err := l.state.HoldingGet(symbol, assetID, from)
	if err != nil {
		return err
	}
	if fromHolding.Cmp(quantity) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAssets, fromHolding, quantity)
	}
	if err := l.state.HoldingPut(symbol, assetID, from, new(big.Int).Sub(fromHolding, quantity)); err != nil {
		return err
	}
	toHolding, err := l.state.HoldingGet(symbol, assetID, to)
	if err != nil {
		return err
	}
	return l.state.HoldingPut(symbol, assetID, to, new(big.Int).Add(toHolding, quantity))
}
