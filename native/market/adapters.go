package market

import "math/big"

// AssetCustody is the external collaborator holding asset ownership state.
// Authorization is read fresh on every dependent operation and never cached:
// approvals can be revoked between listing and settlement, which is why the
// settlement path re-checks through Transfer and maps its failure to
// ErrSettlementFailed.
type AssetCustody interface {
	// IsAuthorized reports whether the owner has approved the exchange to
	// move assets of the collection on their behalf.
	IsAuthorized(owner [20]byte, collection string) (bool, error)
	// BalanceOf returns the units of the asset held by the owner.
	BalanceOf(owner [20]byte, collection string, assetID uint64) (*big.Int, error)
	// Transfer moves quantity units from one address to another. It fails
	// when the sender's balance or the exchange approval no longer covers
	// the move.
	Transfer(from, to [20]byte, collection string, assetID uint64, quantity *big.Int) error
	// Exclusive reports whether the collection carries single-unit assets.
	Exclusive(collection string) (bool, error)
	// Creator resolves the designated royalty recipient for an asset.
	Creator(collection string, assetID uint64) ([20]byte, bool, error)
}

// PaymentLedger is the external collaborator moving fungible payment value.
// Pull is the pre-authorised escrow path used by bids; Deposit models an
// attached native-value payment pushed with a direct purchase. Both park the
// funds with the exchange vault until Push releases them.
type PaymentLedger interface {
	// Pull moves amount from the payer to the exchange vault, consuming the
	// payer's standing allowance.
	Pull(payer [20]byte, token string, amount *big.Int) error
	// Push releases amount from the exchange vault to the payee.
	Push(payee [20]byte, token string, amount *big.Int) error
	// Deposit moves amount from the payer to the exchange vault without an
	// allowance, the way value attached to a call changes hands.
	Deposit(payer [20]byte, token string, amount *big.Int) error
}

// FeePolicy exposes the global fee-share table to the settlement engine. The
// table is read on every settlement so operator updates are forward-effective
// only.
type FeePolicy interface {
	Share(tier uint8) (uint8, error)
}
