package market

import (
	"encoding/hex"
	"strconv"

	"bazaar/core/types"
)

const (
	EventTypeOfferCreated       = "market.offer.created"
	EventTypeOfferPriceUpdated  = "market.offer.price_updated"
	EventTypeOfferExpiryUpdated = "market.offer.expiry_updated"
	EventTypeOfferWithdrawn     = "market.offer.withdrawn"
	EventTypeBidPlaced          = "market.bid.placed"
	EventTypeBidCancelled       = "market.bid.cancelled"
	EventTypeBidAccepted        = "market.settlement.bid_accepted"
	EventTypePurchase           = "market.settlement.purchase"
)

// NewOfferCreatedEvent returns the canonical payload for a new listing.
func NewOfferCreatedEvent(o *Offer) *types.Event { return newOfferEvent(EventTypeOfferCreated, o) }

// NewOfferPriceUpdatedEvent returns the payload emitted on a price change.
func NewOfferPriceUpdatedEvent(o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferPriceUpdated, o)
}

// NewOfferExpiryUpdatedEvent returns the payload emitted on an expiry change.
func NewOfferExpiryUpdatedEvent(o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferExpiryUpdated, o)
}

// NewOfferWithdrawnEvent returns the payload emitted when a listing closes.
func NewOfferWithdrawnEvent(o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferWithdrawn, o)
}

// NewBidPlacedEvent returns the payload emitted when escrow is taken.
func NewBidPlacedEvent(b *Bid) *types.Event { return newBidEvent(EventTypeBidPlaced, b) }

// NewBidCancelledEvent returns the payload emitted when escrow is refunded.
func NewBidCancelledEvent(b *Bid) *types.Event { return newBidEvent(EventTypeBidCancelled, b) }

// NewBidAcceptedEvent returns the payload for a seller-side settlement.
func NewBidAcceptedEvent(s *Settlement) *types.Event {
	return newSettlementEvent(EventTypeBidAccepted, s)
}

// NewPurchaseEvent returns the payload for an instant purchase settlement.
func NewPurchaseEvent(s *Settlement) *types.Event {
	return newSettlementEvent(EventTypePurchase, s)
}

func newOfferEvent(eventType string, o *Offer) *types.Event {
	attrs := make(map[string]string)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeOffer(o)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["key"] = hex.EncodeToString(sanitized.Key[:])
	attrs["collection"] = sanitized.Collection
	attrs["assetId"] = strconv.FormatUint(sanitized.AssetID, 10)
	attrs["seller"] = hex.EncodeToString(sanitized.Seller[:])
	attrs["paymentToken"] = sanitized.PaymentToken
	attrs["price"] = sanitized.Price.String()
	attrs["quantity"] = sanitized.Quantity.String()
	attrs["forSale"] = strconv.FormatBool(sanitized.ForSale)
	attrs["forAuction"] = strconv.FormatBool(sanitized.ForAuction)
	attrs["expiresAt"] = strconv.FormatInt(sanitized.ExpiresAt, 10)
	attrs["feeTier"] = strconv.FormatUint(uint64(sanitized.FeeTier), 10)
	if sanitized.RoyaltyPercent > 0 {
		attrs["royaltyPercent"] = strconv.FormatUint(uint64(sanitized.RoyaltyPercent), 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newBidEvent(eventType string, b *Bid) *types.Event {
	attrs := make(map[string]string)
	if b == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeBid(b)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["offerKey"] = hex.EncodeToString(sanitized.OfferKey[:])
	attrs["bidder"] = hex.EncodeToString(sanitized.Bidder[:])
	attrs["paymentToken"] = sanitized.PaymentToken
	attrs["price"] = sanitized.Price.String()
	attrs["quantity"] = sanitized.Quantity.String()
	attrs["escrow"] = sanitized.Escrow.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newSettlementEvent(eventType string, s *Settlement) *types.Event {
	attrs := make(map[string]string)
	if s == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["offerKey"] = hex.EncodeToString(s.OfferKey[:])
	attrs["seller"] = hex.EncodeToString(s.Seller[:])
	attrs["buyer"] = hex.EncodeToString(s.Buyer[:])
	attrs["token"] = s.Token
	if s.Quantity != nil {
		attrs["quantity"] = s.Quantity.String()
	}
	if s.Amount != nil {
		attrs["amount"] = s.Amount.String()
	}
	if s.Fee != nil {
		attrs["fee"] = s.Fee.String()
	}
	if s.Royalty != nil {
		attrs["royalty"] = s.Royalty.String()
	}
	if s.Net != nil {
		attrs["net"] = s.Net.String()
	}
	if s.Remaining != nil {
		attrs["remaining"] = s.Remaining.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
