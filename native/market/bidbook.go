package market

import (
	"fmt"
	"math/big"

	nativecommon "bazaar/native/common"
)

// PlaceBid escrows price*quantity of the offer's payment token against an
// auction listing. A bidder carries at most one bid per offer: re-bidding
// replaces the prior bid, moving only the escrow difference between old and
// new, so two escrows for the same bidder never coexist and a fully-escrowed
// bidder can still lower their bid. If the pull fails nothing is touched.
func (e *Engine) PlaceBid(key [32]byte, paymentToken string, price, quantity *big.Int, caller [20]byte) (*Bid, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	offer, err := e.loadOffer(key)
	if err != nil {
		return nil, err
	}
	if !offer.ForAuction {
		return nil, fmt.Errorf("%w: offer is not up for auction", ErrOfferInactive)
	}
	if offer.Quantity.Sign() <= 0 {
		return nil, fmt.Errorf("%w: offer is sold out", ErrOfferInactive)
	}
	if e.expired(offer) {
		return nil, fmt.Errorf("%w: offer expired at %d", ErrOfferInactive, offer.ExpiresAt)
	}
	normalizedToken, err := NormalizeSymbol(paymentToken)
	if err != nil {
		return nil, err
	}
	if normalizedToken != offer.PaymentToken {
		return nil, fmt.Errorf("%w: offer settles in %s, not %s", ErrEscrowFailed, offer.PaymentToken, normalizedToken)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("market: bid price must be positive")
	}
	if quantity == nil || quantity.Sign() <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidQuantity)
	}
	if quantity.Cmp(offer.Quantity) > 0 {
		return nil, fmt.Errorf("%w: %s exceeds remaining %s", ErrInvalidQuantity, quantity, offer.Quantity)
	}
	escrow := new(big.Int).Mul(price, quantity)
	prior, replacing := e.state.BidGet(key, caller)
	if replacing {
		// Only the escrow difference moves, so a bidder whose funds are
		// fully escrowed can still lower or re-place their own bid. The
		// vault already holds the prior escrow, so a downward release
		// cannot fail short of ledger corruption.
		diff := new(big.Int).Sub(escrow, prior.Escrow)
		switch diff.Sign() {
		case 1:
			if err := e.payments.Pull(caller, normalizedToken, diff); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrEscrowFailed, err)
			}
		case -1:
			if err := e.payments.Push(caller, normalizedToken, new(big.Int).Neg(diff)); err != nil {
				return nil, err
			}
		}
	} else if err := e.payments.Pull(caller, normalizedToken, escrow); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEscrowFailed, err)
	}
	bid := &Bid{
		OfferKey:     key,
		Bidder:       caller,
		PaymentToken: normalizedToken,
		Price:        new(big.Int).Set(price),
		Quantity:     new(big.Int).Set(quantity),
		Escrow:       escrow,
		CreatedAt:    e.now(),
	}
	if err := e.state.BidPut(bid); err != nil {
		return nil, err
	}
	if !replacing {
		count, err := e.state.OfferBidCount(key)
		if err != nil {
			return nil, err
		}
		if err := e.state.OfferSetBidCount(key, count+1); err != nil {
			return nil, err
		}
	}
	e.emit(NewBidPlacedEvent(bid))
	return bid.Clone(), nil
}

// CancelBid refunds the full escrowed amount to the bidder and removes the
// bid. It works against expired, withdrawn, and fully settled offers alike:
// escrow is never stranded by an offer closing.
func (e *Engine) CancelBid(key [32]byte, bidder [20]byte, caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != bidder {
		return fmt.Errorf("%w: only the bidder may cancel", ErrUnauthorized)
	}
	bid, ok := e.state.BidGet(key, bidder)
	if !ok {
		return ErrBidNotFound
	}
	if err := e.payments.Push(bidder, bid.PaymentToken, bid.Escrow); err != nil {
		return err
	}
	if err := e.state.BidDelete(key, bidder); err != nil {
		return err
	}
	count, err := e.state.OfferBidCount(key)
	if err != nil {
		return err
	}
	if count > 0 {
		if err := e.state.OfferSetBidCount(key, count-1); err != nil {
			return err
		}
	}
	e.emit(NewBidCancelledEvent(bid))
	return nil
}
