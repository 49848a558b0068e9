package market

import (
	"fmt"
	"math/big"

	nativecommon "bazaar/native/common"
	"bazaar/native/fees"
)

func (e *Engine) settlementSplit(offer *Offer, amount *big.Int) (fee, royalty *big.Int, net *big.Int, creator [20]byte, err error) {
	if e.fees == nil {
		return nil, nil, nil, creator, errNilFees
	}
	share, err := e.fees.Share(offer.FeeTier)
	if err != nil {
		return nil, nil, nil, creator, err
	}
	royaltyPercent := offer.RoyaltyPercent
	creator, hasCreator, err := e.custody.Creator(offer.Collection, offer.AssetID)
	if err != nil {
		return nil, nil, nil, creator, err
	}
	if !hasCreator {
		// A loyalty offer without a registered recipient pays no royalty;
		// the uncut portion stays with the seller.
		royaltyPercent = 0
	}
	fee, royalty, net = fees.Split(amount, share, royaltyPercent)
	return fee, royalty, net, creator, nil
}

func (e *Engine) payout(offer *Offer, token string, net, fee, royalty *big.Int, creator [20]byte) error {
	if net.Sign() > 0 {
		if err := e.payments.Push(offer.Seller, token, net); err != nil {
			return err
		}
	}
	if fee.Sign() > 0 {
		if err := e.payments.Push(e.feeCollector, token, fee); err != nil {
			return err
		}
	}
	if royalty.Sign() > 0 {
		if err := e.payments.Push(creator, token, royalty); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) reduceOffer(offer *Offer, settled *big.Int) (*big.Int, error) {
	remaining := new(big.Int).Sub(offer.Quantity, settled)
	if remaining.Sign() <= 0 {
		if err := e.state.OfferDelete(offer.Key); err != nil {
			return nil, err
		}
		return big.NewInt(0), nil
	}
	offer.Quantity = remaining
	if err := e.state.OfferPut(offer); err != nil {
		return nil, err
	}
	return new(big.Int).Set(remaining), nil
}

// AcceptBid settles a specific bid against the seller's offer. The settlement
// quantity is capped by the remaining offer quantity; when the bid is only
// partly filled its quantity and escrow are reduced pro-rata and the bid
// survives. The asset transfer runs before any escrow is released or state is
// mutated, so a custody failure aborts the whole operation with the escrow
// intact.
func (e *Engine) AcceptBid(key [32]byte, bidder [20]byte, caller [20]byte) (*Settlement, error) {
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
	if caller != offer.Seller {
		return nil, fmt.Errorf("%w: caller is not the seller", ErrUnauthorized)
	}
	if !offer.Active() {
		return nil, fmt.Errorf("%w: offer withdrawn", ErrOfferInactive)
	}
	if e.expired(offer) {
		// Stale under-market bids must not be settled after the listing
		// lapsed; the bidder keeps the right to cancel.
		return nil, fmt.Errorf("%w: offer expired at %d", ErrOfferInactive, offer.ExpiresAt)
	}
	bid, ok := e.state.BidGet(key, bidder)
	if !ok {
		return nil, ErrBidNotFound
	}
	settleQty := new(big.Int).Set(bid.Quantity)
	if offer.Quantity.Cmp(settleQty) < 0 {
		settleQty.Set(offer.Quantity)
	}
	amount := new(big.Int).Mul(bid.Price, settleQty)
	fee, royalty, net, creator, err := e.settlementSplit(offer, amount)
	if err != nil {
		return nil, err
	}
	if err := e.custody.Transfer(offer.Seller, bid.Bidder, offer.Collection, offer.AssetID, settleQty); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	if err := e.payout(offer, bid.PaymentToken, net, fee, royalty, creator); err != nil {
		return nil, err
	}
	remaining, err := e.reduceOffer(offer, settleQty)
	if err != nil {
		return nil, err
	}
	if settleQty.Cmp(bid.Quantity) == 0 {
		if err := e.state.BidDelete(key, bidder); err != nil {
			return nil, err
		}
		count, err := e.state.OfferBidCount(key)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			if err := e.state.OfferSetBidCount(key, count-1); err != nil {
				return nil, err
			}
		}
	} else {
		bid.Quantity = new(big.Int).Sub(bid.Quantity, settleQty)
		bid.Escrow = new(big.Int).Sub(bid.Escrow, amount)
		if err := e.state.BidPut(bid); err != nil {
			return nil, err
		}
	}
	settlement := &Settlement{
		OfferKey:  key,
		Seller:    offer.Seller,
		Buyer:     bid.Bidder,
		Token:     bid.PaymentToken,
		Quantity:  settleQty,
		Amount:    amount,
		Fee:       fee,
		Royalty:   royalty,
		Net:       net,
		Remaining: remaining,
	}
	e.emit(NewBidAcceptedEvent(settlement))
	return settlement, nil
}

// BuyOffer executes an instant purchase of quantity units against a for-sale
// offer using value attached in the native token. Overpayment is refunded in
// full; underpayment rejects before any value moves. The same fee/royalty
// split as AcceptBid applies, at the offer's listed unit price.
func (e *Engine) BuyOffer(key [32]byte, quantity *big.Int, caller [20]byte, attached *big.Int) (*Settlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.nativeToken == "" {
		return nil, fmt.Errorf("market engine: native token not configured")
	}
	offer, err := e.loadOffer(key)
	if err != nil {
		return nil, err
	}
	if !offer.ForSale {
		return nil, fmt.Errorf("%w: offer is not for direct sale", ErrOfferInactive)
	}
	if offer.Quantity.Sign() <= 0 {
		return nil, fmt.Errorf("%w: offer is sold out", ErrOfferInactive)
	}
	if e.expired(offer) {
		return nil, fmt.Errorf("%w: offer expired at %d", ErrOfferInactive, offer.ExpiresAt)
	}
	if quantity == nil || quantity.Sign() <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidQuantity)
	}
	if quantity.Cmp(offer.Quantity) > 0 {
		return nil, fmt.Errorf("%w: %s exceeds remaining %s", ErrInvalidQuantity, quantity, offer.Quantity)
	}
	required := new(big.Int).Mul(offer.Price, quantity)
	paid := big.NewInt(0)
	if attached != nil {
		paid = new(big.Int).Set(attached)
	}
	if paid.Cmp(required) < 0 {
		return nil, fmt.Errorf("%w: attached %s, required %s", ErrInsufficientPayment, paid, required)
	}
	fee, royalty, net, creator, err := e.settlementSplit(offer, required)
	if err != nil {
		return nil, err
	}
	if err := e.payments.Deposit(caller, e.nativeToken, paid); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientPayment, err)
	}
	if err := e.custody.Transfer(offer.Seller, caller, offer.Collection, offer.AssetID, quantity); err != nil {
		// Hand the attached value straight back: the purchase never
		// happened.
		if refundErr := e.payments.Push(caller, e.nativeToken, paid); refundErr != nil {
			return nil, refundErr
		}
		return nil, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	if err := e.payout(offer, e.nativeToken, net, fee, royalty, creator); err != nil {
		return nil, err
	}
	if excess := new(big.Int).Sub(paid, required); excess.Sign() > 0 {
		if err := e.payments.Push(caller, e.nativeToken, excess); err != nil {
			return nil, err
		}
	}
	remaining, err := e.reduceOffer(offer, quantity)
	if err != nil {
		return nil, err
	}
	settlement := &Settlement{
		OfferKey:  key,
		Seller:    offer.Seller,
		Buyer:     caller,
		Token:     e.nativeToken,
		Quantity:  new(big.Int).Set(quantity),
		Amount:    required,
		Fee:       fee,
		Royalty:   royalty,
		Net:       net,
		Remaining: remaining,
	}
	e.emit(NewPurchaseEvent(settlement))
	return settlement, nil
}
