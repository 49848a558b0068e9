package market

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Offer is a listing of an asset for direct sale and/or auction. Exclusive
// collections always list a single unit and are keyed by (collection, asset);
// quantity-bearing collections are keyed by a caller-chosen offer identifier so
// several listings may cover disjoint quantity of the same asset.
type Offer struct {
	Key            [32]byte
	OfferID        uint64
	Collection     string
	AssetID        uint64
	Seller         [20]byte
	PaymentToken   string
	Price          *big.Int
	Quantity       *big.Int
	ForSale        bool
	ForAuction     bool
	ExpiresAt      int64
	FeeTier        uint8
	RoyaltyPercent uint8
	CreatedAt      int64
}

// Active reports whether the offer still admits bids or purchases. Both mode
// flags false means withdrawn.
func (o *Offer) Active() bool {
	if o == nil {
		return false
	}
	return o.ForSale || o.ForAuction
}

// Clone returns a deep copy of the offer so callers can safely mutate the copy
// without affecting the stored instance.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Price != nil {
		clone.Price = new(big.Int).Set(o.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	if o.Quantity != nil {
		clone.Quantity = new(big.Int).Set(o.Quantity)
	} else {
		clone.Quantity = big.NewInt(0)
	}
	return &clone
}

// Bid is a buyer's standing offer against a specific listing, backed by
// escrowed payment tokens. The escrow always equals price times quantity and
// is reduced pro-rata on partial fills.
type Bid struct {
	OfferKey     [32]byte
	Bidder       [20]byte
	PaymentToken string
	Price        *big.Int
	Quantity     *big.Int
	Escrow       *big.Int
	CreatedAt    int64
}

// Clone returns a deep copy of the bid.
func (b *Bid) Clone() *Bid {
	if b == nil {
		return nil
	}
	clone := *b
	if b.Price != nil {
		clone.Price = new(big.Int).Set(b.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	if b.Quantity != nil {
		clone.Quantity = new(big.Int).Set(b.Quantity)
	} else {
		clone.Quantity = big.NewInt(0)
	}
	if b.Escrow != nil {
		clone.Escrow = new(big.Int).Set(b.Escrow)
	} else {
		clone.Escrow = big.NewInt(0)
	}
	return &clone
}

// Settlement summarises an executed exchange of asset for payment, inclusive
// of the fee/royalty split.
type Settlement struct {
	OfferKey  [32]byte
	Seller    [20]byte
	Buyer     [20]byte
	Token     string
	Quantity  *big.Int
	Amount    *big.Int
	Fee       *big.Int
	Royalty   *big.Int
	Net       *big.Int
	Remaining *big.Int
}

// NormalizeSymbol canonicalises token and collection symbols: trimmed,
// uppercase, one to twelve alphanumeric characters.
func NormalizeSymbol(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if len(trimmed) == 0 || len(trimmed) > 12 {
		return "", fmt.Errorf("market: invalid symbol %q", symbol)
	}
	for _, r := range trimmed {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("market: invalid symbol %q", symbol)
		}
	}
	return trimmed, nil
}

// OfferKeyForAsset derives the identity key for an exclusive-collection
// listing: at most one active offer may exist per asset.
func OfferKeyForAsset(collection string, assetID uint64) [32]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], assetID)
	return ethcrypto.Keccak256Hash([]byte(collection), buf[:])
}

// OfferKeyForID derives the identity key for a quantity-bearing listing from
// its caller-chosen offer identifier.
func OfferKeyForID(offerID uint64) [32]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], offerID)
	return ethcrypto.Keccak256Hash([]byte("offer"), buf[:])
}

// SanitizeOffer validates and normalises the supplied offer, returning a clone
// with canonical symbol casing and non-nil amounts. The original is not
// mutated.
func SanitizeOffer(o *Offer) (*Offer, error) {
	if o == nil {
		return nil, fmt.Errorf("market: nil offer")
	}
	clone := o.Clone()
	collection, err := NormalizeSymbol(clone.Collection)
	if err != nil {
		return nil, err
	}
	clone.Collection = collection
	token, err := NormalizeSymbol(clone.PaymentToken)
	if err != nil {
		return nil, err
	}
	clone.PaymentToken = token
	if clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("market: offer price must be positive")
	}
	if clone.Quantity.Sign() < 0 {
		return nil, fmt.Errorf("market: offer quantity must be non-negative")
	}
	if clone.RoyaltyPercent > 100 {
		return nil, fmt.Errorf("market: royalty percent out of range: %d", clone.RoyaltyPercent)
	}
	return clone, nil
}

// SanitizeBid validates and normalises the supplied bid.
func SanitizeBid(b *Bid) (*Bid, error) {
	if b == nil {
		return nil, fmt.Errorf("market: nil bid")
	}
	clone := b.Clone()
	token, err := NormalizeSymbol(clone.PaymentToken)
	if err != nil {
		return nil, err
	}
	clone.PaymentToken = token
	if clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("market: bid price must be positive")
	}
	if clone.Quantity.Sign() <= 0 {
		return nil, fmt.Errorf("market: bid quantity must be positive")
	}
	if clone.Escrow.Sign() < 0 {
		return nil, fmt.Errorf("market: bid escrow must be non-negative")
	}
	return clone, nil
}
