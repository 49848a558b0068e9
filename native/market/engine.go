package market

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"bazaar/core/events"
	"bazaar/core/types"
	nativecommon "bazaar/native/common"
)

var (
	errNilState    = errors.New("market engine: state not configured")
	errNilCustody  = errors.New("market engine: asset custody not configured")
	errNilPayments = errors.New("market engine: payment ledger not configured")
	errNilFees     = errors.New("market engine: fee policy not configured")
)

const moduleName = "market"

type engineState interface {
	OfferPut(*Offer) error
	OfferGet(key [32]byte) (*Offer, bool)
	OfferDelete(key [32]byte) error
	BidPut(*Bid) error
	BidGet(offerKey [32]byte, bidder [20]byte) (*Bid, bool)
	BidDelete(offerKey [32]byte, bidder [20]byte) error
	OfferBidCount(offerKey [32]byte) (uint64, error)
	OfferSetBidCount(offerKey [32]byte, count uint64) error
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// Engine wires the offer/bid lifecycle with external state, the custody and
// payment adapters, and the fee policy. Operations are admitted one at a time:
// each runs to completion or full rollback before the next begins, so no
// caller ever observes a partially-updated offer or bid.
type Engine struct {
	mu           sync.Mutex
	state        engineState
	custody      AssetCustody
	payments     PaymentLedger
	fees         FeePolicy
	feeCollector [20]byte
	nativeToken  string
	emitter      events.Emitter
	nowFn        func() int64
	pauses       nativecommon.PauseView
}

// NewEngine creates a market engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCustody configures the asset custody adapter.
func (e *Engine) SetCustody(custody AssetCustody) { e.custody = custody }

// SetPayments configures the payment ledger adapter.
func (e *Engine) SetPayments(payments PaymentLedger) { e.payments = payments }

// SetFeePolicy injects the fee policy consulted on every settlement.
func (e *Engine) SetFeePolicy(policy FeePolicy) { e.fees = policy }

// SetFeeCollector configures the address that receives the exchange fee cut.
func (e *Engine) SetFeeCollector(addr [20]byte) { e.feeCollector = addr }

// SetNativeToken configures the token symbol used for direct purchases.
func (e *Engine) SetNativeToken(symbol string) { e.nativeToken = symbol }

// SetPauses configures the pause view consulted before every operation.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.custody == nil {
		return errNilCustody
	}
	if e.payments == nil {
		return errNilPayments
	}
	return nil
}

func (e *Engine) loadOffer(key [32]byte) (*Offer, error) {
	offer, ok := e.state.OfferGet(key)
	if !ok {
		return nil, ErrOfferNotFound
	}
	return offer, nil
}

func (e *Engine) expired(offer *Offer) bool {
	return offer.ExpiresAt > 0 && e.now() > offer.ExpiresAt
}

// CreateOffer lists an asset for sale and/or auction. The caller must be the
// seller, the custody adapter must confirm the seller controls at least the
// listed quantity and has pre-authorised the exchange, and the expiry must be
// strictly in the future. Exclusive collections always list a single unit and
// are keyed by asset; quantity-bearing collections by the supplied offer
// identifier. Re-listing an existing identity is allowed only while no
// unsettled bids remain against it.
func (e *Engine) CreateOffer(offerID uint64, seller [20]byte, collection string, assetID uint64, paymentToken string, price, quantity *big.Int, forSale, forAuction bool, expiresAt int64, feeTier, royaltyPercent uint8, caller [20]byte) (*Offer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	normalizedCollection, err := NormalizeSymbol(collection)
	if err != nil {
		return nil, err
	}
	normalizedToken, err := NormalizeSymbol(paymentToken)
	if err != nil {
		return nil, err
	}
	if caller != seller {
		return nil, fmt.Errorf("%w: caller is not the seller", ErrUnauthorized)
	}
	authorized, err := e.custody.IsAuthorized(seller, normalizedCollection)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, fmt.Errorf("%w: exchange not approved for collection %s", ErrUnauthorized, normalizedCollection)
	}
	exclusive, err := e.custody.Exclusive(normalizedCollection)
	if err != nil {
		return nil, err
	}
	if quantity == nil || quantity.Sign() <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidQuantity)
	}
	if exclusive && quantity.Cmp(big.NewInt(1)) != 0 {
		return nil, fmt.Errorf("%w: exclusive assets list exactly one unit", ErrInvalidQuantity)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("market: price must be positive")
	}
	if royaltyPercent > 100 {
		return nil, fmt.Errorf("market: royalty percent out of range: %d", royaltyPercent)
	}
	balance, err := e.custody.BalanceOf(seller, normalizedCollection, assetID)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(quantity) < 0 {
		return nil, fmt.Errorf("%w: seller holds %s of %s units", ErrUnauthorized, balance, quantity)
	}
	now := e.now()
	if expiresAt <= now {
		return nil, fmt.Errorf("%w: %d not in the future", ErrInvalidExpiry, expiresAt)
	}
	var key [32]byte
	if exclusive {
		key = OfferKeyForAsset(normalizedCollection, assetID)
	} else {
		if offerID == 0 {
			return nil, fmt.Errorf("market: offer id required for quantity listings")
		}
		key = OfferKeyForID(offerID)
	}
	// Checked whether or not an offer record survives at the key: a fully
	// settled listing is deleted but straggler bids keep their escrow, and
	// they must never attach to a fresh listing at the same identity.
	count, err := e.state.OfferBidCount(key)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: %d unsettled", ErrOutstandingBids, count)
	}
	offer := &Offer{
		Key:            key,
		OfferID:        offerID,
		Collection:     normalizedCollection,
		AssetID:        assetID,
		Seller:         seller,
		PaymentToken:   normalizedToken,
		Price:          new(big.Int).Set(price),
		Quantity:       new(big.Int).Set(quantity),
		ForSale:        forSale,
		ForAuction:     forAuction,
		ExpiresAt:      expiresAt,
		FeeTier:        feeTier,
		RoyaltyPercent: royaltyPercent,
		CreatedAt:      now,
	}
	if err := e.state.OfferPut(offer); err != nil {
		return nil, err
	}
	e.emit(NewOfferCreatedEvent(offer))
	return offer.Clone(), nil
}

// SetPrice updates the unit price of an existing offer. Escrowed terms of
// existing bids are untouched.
func (e *Engine) SetPrice(key [32]byte, newPrice *big.Int, caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	offer, err := e.loadOffer(key)
	if err != nil {
		return err
	}
	if caller != offer.Seller {
		return fmt.Errorf("%w: caller is not the seller", ErrUnauthorized)
	}
	if newPrice == nil || newPrice.Sign() <= 0 {
		return fmt.Errorf("market: price must be positive")
	}
	offer.Price = new(big.Int).Set(newPrice)
	if err := e.state.OfferPut(offer); err != nil {
		return err
	}
	e.emit(NewOfferPriceUpdatedEvent(offer))
	return nil
}

// SetExpiry updates the expiry timestamp of an existing offer. Moving it into
// the past immediately closes the offer to new bids and purchases; escrowed
// bids stay cancellable. The timestamp must be positive: zero is the
// never-expires sentinel and would silently hold the offer open forever.
func (e *Engine) SetExpiry(key [32]byte, newExpiry int64, caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	offer, err := e.loadOffer(key)
	if err != nil {
		return err
	}
	if caller != offer.Seller {
		return fmt.Errorf("%w: caller is not the seller", ErrUnauthorized)
	}
	if newExpiry <= 0 {
		return fmt.Errorf("%w: %d is not a timestamp", ErrInvalidExpiry, newExpiry)
	}
	offer.ExpiresAt = newExpiry
	if err := e.state.OfferPut(offer); err != nil {
		return err
	}
	e.emit(NewOfferExpiryUpdatedEvent(offer))
	return nil
}

// WithdrawOffer clears both mode flags, closing the offer to new bids and
// purchases. Outstanding bids are not cancelled; each remains individually
// refundable through CancelBid.
func (e *Engine) WithdrawOffer(key [32]byte, caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	offer, err := e.loadOffer(key)
	if err != nil {
		return err
	}
	if caller != offer.Seller {
		return fmt.Errorf("%w: caller is not the seller", ErrUnauthorized)
	}
	offer.ForSale = false
	offer.ForAuction = false
	if err := e.state.OfferPut(offer); err != nil {
		return err
	}
	e.emit(NewOfferWithdrawnEvent(offer))
	return nil
}

// GetOffer returns a copy of the offer at the given identity.
func (e *Engine) GetOffer(key [32]byte) (*Offer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	return e.loadOffer(key)
}

// GetBid returns a copy of the bidder's bid against the given identity.
func (e *Engine) GetBid(key [32]byte, bidder [20]byte) (*Bid, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	bid, ok := e.state.BidGet(key, bidder)
	if !ok {
		return nil, ErrBidNotFound
	}
	return bid, nil
}
