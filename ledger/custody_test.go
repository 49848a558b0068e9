package ledger

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strconv"
	"testing"
)

type memCustodyState struct {
	collections map[string]*Collection
	holdings    map[string]*big.Int
	approvals   map[string]bool
	creators    map[string][20]byte
	supplies    map[string]*big.Int
}

func newMemCustodyState() *memCustodyState {
	return &memCustodyState{
		collections: make(map[string]*Collection),
		holdings:    make(map[string]*big.Int),
		approvals:   make(map[string]bool),
		creators:    make(map[string][20]byte),
		supplies:    make(map[string]*big.Int),
	}
}

func holdingIdx(symbol string, assetID uint64, owner [20]byte) string {
	return symbol + "/" + strconv.FormatUint(assetID, 10) + "/" + hex.EncodeToString(owner[:])
}

func assetIdx(symbol string, assetID uint64) string {
	return symbol + "/" + strconv.FormatUint(assetID, 10)
}

func approvalIdx(symbol string, owner [20]byte) string {
	return symbol + "/" + hex.EncodeToString(owner[:])
}

func (m *memCustodyState) CollectionGet(symbol string) (*Collection, bool, error) {
	col, ok := m.collections[symbol]
	return col, ok, nil
}

func (m *memCustodyState) CollectionPut(col *Collection) error {
	m.collections[col.Symbol] = col
	return nil
}

func (m *memCustodyState) HoldingGet(symbol string, assetID uint64, owner [20]byte) (*big.Int, error) {
	if holding, ok := m.holdings[holdingIdx(symbol, assetID, owner)]; ok {
		return new(big.Int).Set(holding), nil
	}
	return big.NewInt(0), nil
}

func (m *memCustodyState) HoldingPut(symbol string, assetID uint64, owner [20]byte, quantity *big.Int) error {
	m.holdings[holdingIdx(symbol, assetID, owner)] = new(big.Int).Set(quantity)
	return nil
}

func (m *memCustodyState) ApprovalGet(symbol string, owner [20]byte) (bool, error) {
	return m.approvals[approvalIdx(symbol, owner)], nil
}

func (m *memCustodyState) ApprovalPut(symbol string, owner [20]byte, approved bool) error {
	m.approvals[approvalIdx(symbol, owner)] = approved
	return nil
}

func (m *memCustodyState) CreatorGet(symbol string, assetID uint64) ([20]byte, bool, error) {
	creator, ok := m.creators[assetIdx(symbol, assetID)]
	return creator, ok, nil
}

func (m *memCustodyState) CreatorPut(symbol string, assetID uint64, creator [20]byte) error {
	m.creators[assetIdx(symbol, assetID)] = creator
	return nil
}

func (m *memCustodyState) SupplyGet(symbol string, assetID uint64) (*big.Int, error) {
	if supply, ok := m.supplies[assetIdx(symbol, assetID)]; ok {
		return new(big.Int).Set(supply), nil
	}
	return big.NewInt(0), nil
}

func (m *memCustodyState) SupplyPut(symbol string, assetID uint64, supply *big.Int) error {
	m.supplies[assetIdx(symbol, assetID)] = new(big.Int).Set(supply)
	return nil
}

func newTestCustodyLedger(t *testing.T, symbol string, exclusive bool) *CustodyLedger {
	t.Helper()
	l := NewCustodyLedger(newMemCustodyState())
	if err := l.CreateCollection(symbol, exclusive, 1); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	return l
}

func TestCreateCollectionRejectsDuplicate(t *testing.T) {
	l := newTestCustodyLedger(t, "RELICS", false)
	if err := l.CreateCollection("RELICS", true, 2); err == nil {
		t.Fatalf("expected error re-registering collection")
	}
}

func TestMintRecordsCreatorOnFirstIssue(t *testing.T) {
	l := newTestCustodyLedger(t, "RELICS", false)
	owner := testAddr(0x01)
	creator := testAddr(0x0c)
	other := testAddr(0x0d)
	if err := l.Mint(owner, "RELICS", 7, big.NewInt(5), creator); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Mint(owner, "RELICS", 7, big.NewInt(5), other); err != nil {
		t.Fatalf("second mint: %v", err)
	}
	got, ok, err := l.Creator("RELICS", 7)
	if err != nil || !ok {
		t.Fatalf("creator lookup: ok=%v err=%v", ok, err)
	}
	if got != creator {
		t.Fatalf("creator must be fixed at first issue")
	}
}

func TestMintExclusiveCapsSupplyAtOne(t *testing.T) {
	l := newTestCustodyLedger(t, "CROWN", true)
	owner := testAddr(0x01)
	if err := l.Mint(owner, "CROWN", 1, big.NewInt(1), owner); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Mint(owner, "CROWN", 1, big.NewInt(1), owner); err == nil {
		t.Fatalf("expected error minting a second exclusive unit")
	}
}

func TestMintUnknownCollection(t *testing.T) {
	l := NewCustodyLedger(newMemCustodyState())
	if err := l.Mint(testAddr(0x01), "NOPE", 1, big.NewInt(1), testAddr(0x01)); !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestTransferRequiresApproval(t *testing.T) {
	l := newTestCustodyLedger(t, "RELICS", false)
	from := testAddr(0x01)
	to := testAddr(0x02)
	if err := l.Mint(from, "RELICS", 7, big.NewInt(5), from); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer(from, to, "RELICS", 7, big.NewInt(2)); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
	if err := l.SetApproval(from, "RELICS", true); err != nil {
		t.Fatalf("set approval: %v", err)
	}
	if err := l.Transfer(from, to, "RELICS", 7, big.NewInt(2)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	balance, _ := l.BalanceOf(to, "RELICS", 7)
	if balance.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("recipient balance = %s, want 2", balance)
	}
}

func TestTransferRevocationSurfacesAtCallTime(t *testing.T) {
	l := newTestCustodyLedger(t, "RELICS", false)
	from := testAddr(0x01)
	to := testAddr(0x02)
	if err := l.Mint(from, "RELICS", 7, big.NewInt(5), from); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.SetApproval(from, "RELICS", true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := l.SetApproval(from, "RELICS", false); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := l.Transfer(from, to, "RELICS", 7, big.NewInt(1)); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved after revocation, got %v", err)
	}
}

func TestTransferRejectsOverdraw(t *testing.T) {
	l := newTestCustodyLedger(t, "RELICS", false)
	from := testAddr(0x01)
	if err := l.Mint(from, "RELICS", 7, big.NewInt(3), from); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.SetApproval(from, "RELICS", true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := l.Transfer(from, testAddr(0x02), "RELICS", 7, big.NewInt(4)); !errors.Is(err, ErrInsufficientAssets) {
		t.Fatalf("expected ErrInsufficientAssets, got %v", err)
	}
}

func TestExclusiveTransfersOneUnit(t *testing.T) {
	l := newTestCustodyLedger(t, "CROWN", true)
	from := testAddr(0x01)
	if err := l.Mint(from, "CROWN", 1, big.NewInt(1), from); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.SetApproval(from, "CROWN", true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := l.Transfer(from, testAddr(0x02), "CROWN", 1, big.NewInt(2)); err == nil {
		t.Fatalf("expected error moving two units of an exclusive asset")
	}
	if err := l.Transfer(from, testAddr(0x02), "CROWN", 1, big.NewInt(1)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
}
