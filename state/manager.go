package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"bazaar/core/types"
	"bazaar/ledger"
	"bazaar/native/market"
	"bazaar/storage"
)

// Manager persists exchange state in two logical tables plus the ledgers:
// offers keyed by listing identity, bids keyed by (identity, bidder), and the
// account/custody records behind the payment and custody ledgers. Every
// operation is a point lookup; no range scans are required.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager over the given database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func offerKey(key [32]byte) []byte {
	return []byte("market/offer/" + hex.EncodeToString(key[:]))
}

func bidKey(key [32]byte, bidder [20]byte) []byte {
	return []byte("market/bid/" + hex.EncodeToString(key[:]) + "/" + hex.EncodeToString(bidder[:]))
}

func bidCountKey(key [32]byte) []byte {
	return []byte("market/bidcount/" + hex.EncodeToString(key[:]))
}

func feeShareKey(tier uint8) []byte {
	return []byte("fees/share/" + strconv.FormatUint(uint64(tier), 10))
}

func accountKey(addr [20]byte) []byte {
	return []byte("ledger/account/" + hex.EncodeToString(addr[:]))
}

func collectionKey(symbol string) []byte {
	return []byte("custody/collection/" + symbol)
}

func holdingKey(symbol string, assetID uint64, owner [20]byte) []byte {
	return []byte("custody/holding/" + symbol + "/" + strconv.FormatUint(assetID, 10) + "/" + hex.EncodeToString(owner[:]))
}

func approvalKey(symbol string, owner [20]byte) []byte {
	return []byte("custody/approval/" + symbol + "/" + hex.EncodeToString(owner[:]))
}

func creatorKey(symbol string, assetID uint64) []byte {
	return []byte("custody/creator/" + symbol + "/" + strconv.FormatUint(assetID, 10))
}

func supplyKey(symbol string, assetID uint64) []byte {
	return []byte("custody/supply/" + symbol + "/" + strconv.FormatUint(assetID, 10))
}

func (m *Manager) putJSON(key []byte, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return m.db.Put(key, raw)
}

func (m *Manager) getJSON(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

// --- market engine state ---

func (m *Manager) OfferPut(o *market.Offer) error {
	sanitized, err := market.SanitizeOffer(o)
	if err != nil {
		return err
	}
	return m.putJSON(offerKey(sanitized.Key), sanitized)
}

func (m *Manager) OfferGet(key [32]byte) (*market.Offer, bool) {
	offer := &market.Offer{}
	ok, err := m.getJSON(offerKey(key), offer)
	if err != nil || !ok {
		return nil, false
	}
	return offer, true
}

func (m *Manager) OfferDelete(key [32]byte) error {
	return m.db.Delete(offerKey(key))
}

func (m *Manager) BidPut(b *market.Bid) error {
	sanitized, err := market.SanitizeBid(b)
	if err != nil {
		return err
	}
	return m.putJSON(bidKey(sanitized.OfferKey, sanitized.Bidder), sanitized)
}

func (m *Manager) BidGet(key [32]byte, bidder [20]byte) (*market.Bid, bool) {
	bid := &market.Bid{}
	ok, err := m.getJSON(bidKey(key, bidder), bid)
	if err != nil || !ok {
		return nil, false
	}
	return bid, true
}

func (m *Manager) BidDelete(key [32]byte, bidder [20]byte) error {
	return m.db.Delete(bidKey(key, bidder))
}

func (m *Manager) OfferBidCount(key [32]byte) (uint64, error) {
	var count uint64
	ok, err := m.getJSON(bidCountKey(key), &count)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return count, nil
}

func (m *Manager) OfferSetBidCount(key [32]byte, count uint64) error {
	if count == 0 {
		return m.db.Delete(bidCountKey(key))
	}
	return m.putJSON(bidCountKey(key), count)
}

// --- fee policy state ---

func (m *Manager) FeeShareGet(tier uint8) (uint8, bool, error) {
	var share uint8
	ok, err := m.getJSON(feeShareKey(tier), &share)
	if err != nil {
		return 0, false, err
	}
	return share, ok, nil
}

func (m *Manager) FeeSharePut(tier uint8, share uint8) error {
	return m.putJSON(feeShareKey(tier), share)
}

// --- payment ledger state ---

func (m *Manager) AccountGet(addr [20]byte) (*types.Account, error) {
	acc := types.NewAccount()
	if _, err := m.getJSON(accountKey(addr), acc); err != nil {
		return nil, err
	}
	if acc.Balances == nil {
		acc.Balances = make(map[string]*big.Int)
	}
	if acc.Allowances == nil {
		acc.Allowances = make(map[string]*big.Int)
	}
	return acc, nil
}

func (m *Manager) AccountPut(addr [20]byte, acc *types.Account) error {
	if acc == nil {
		return fmt.Errorf("state: nil account")
	}
	return m.putJSON(accountKey(addr), acc)
}

// --- custody ledger state ---

func (m *Manager) CollectionGet(symbol string) (*ledger.Collection, bool, error) {
	col := &ledger.Collection{}
	ok, err := m.getJSON(collectionKey(symbol), col)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return col, true, nil
}

func (m *Manager) CollectionPut(col *ledger.Collection) error {
	if col == nil {
		return fmt.Errorf("state: nil collection")
	}
	return m.putJSON(collectionKey(col.Symbol), col)
}

func (m *Manager) HoldingGet(symbol string, assetID uint64, owner [20]byte) (*big.Int, error) {
	holding := big.NewInt(0)
	if _, err := m.getJSON(holdingKey(symbol, assetID, owner), holding); err != nil {
		return nil, err
	}
	return holding, nil
}

func (m *Manager) HoldingPut(symbol string, assetID uint64, owner [20]byte, quantity *big.Int) error {
	if quantity == nil || quantity.Sign() < 0 {
		return fmt.Errorf("state: holding must be non-negative")
	}
	if quantity.Sign() == 0 {
		return m.db.Delete(holdingKey(symbol, assetID, owner))
	}
	return m.putJSON(holdingKey(symbol, assetID, owner), quantity)
}

func (m *Manager) ApprovalGet(symbol string, owner [20]byte) (bool, error) {
	var approved bool
	ok, err := m.getJSON(approvalKey(symbol, owner), &approved)
	if err != nil || !ok {
		return false, err
	}
	return approved, nil
}

func (m *Manager) ApprovalPut(symbol string, owner [20]byte, approved bool) error {
	if !approved {
		return m.db.Delete(approvalKey(symbol, owner))
	}
	return m.putJSON(approvalKey(symbol, owner), approved)
}

func (m *Manager) CreatorGet(symbol string, assetID uint64) ([20]byte, bool, error) {
	var encoded string
	ok, err := m.getJSON(creatorKey(symbol, assetID), &encoded)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	raw, err := hex.DecodeString(encoded)
	if err != nil || len(raw) != 20 {
		return [20]byte{}, false, fmt.Errorf("state: malformed creator record for %s/%d", symbol, assetID)
	}
	var creator [20]byte
	copy(creator[:], raw)
	return creator, true, nil
}

func (m *Manager) CreatorPut(symbol string, assetID uint64, creator [20]byte) error {
	return m.putJSON(creatorKey(symbol, assetID), hex.EncodeToString(creator[:]))
}

func (m *Manager) SupplyGet(symbol string, assetID uint64) (*big.Int, error) {
	supply := big.NewInt(0)
	if _, err := m.getJSON(supplyKey(symbol, assetID), supply); err != nil {
		return nil, err
	}
	return supply, nil
}

func (m *Manager) SupplyPut(symbol string, assetID uint64, supply *big.Int) error {
	if supply == nil || supply.Sign() < 0 {
		return fmt.Errorf("state: supply must be non-negative")
	}
	return m.putJSON(supplyKey(symbol, assetID), supply)
}
