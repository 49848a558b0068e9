package market

import "errors"

// Sentinel errors for the offer/bid lifecycle. Every operation rejects
// wholesale with one of these kinds; no partial application survives a
// failure, and nothing here is fatal to the exchange as a whole.
var (
	// ErrUnauthorized is returned when the caller lacks authority over the
	// asset or the listing (wrong seller, wrong bidder, missing custody
	// approval, or insufficient asset balance at listing time).
	ErrUnauthorized = errors.New("market: unauthorized")

	// ErrOfferNotFound is returned when no offer exists at the identity.
	ErrOfferNotFound = errors.New("market: offer not found")

	// ErrBidNotFound is returned when no bid exists for the given bidder.
	ErrBidNotFound = errors.New("market: bid not found")

	// ErrInvalidQuantity covers non-positive quantities, quantities above
	// the remaining offer quantity, and non-unit quantities on exclusive
	// collections.
	ErrInvalidQuantity = errors.New("market: invalid quantity")

	// ErrInvalidExpiry is returned when a new offer does not expire
	// strictly in the future.
	ErrInvalidExpiry = errors.New("market: invalid expiry")

	// ErrOfferInactive is returned for operations against a closed,
	// withdrawn, expired, or wrong-mode offer.
	ErrOfferInactive = errors.New("market: offer inactive")

	// ErrEscrowFailed is returned when the payment ledger cannot pull the
	// bid escrow from the bidder.
	ErrEscrowFailed = errors.New("market: escrow failed")

	// ErrInsufficientPayment is returned when the attached payment does not
	// cover the purchase price.
	ErrInsufficientPayment = errors.New("market: insufficient payment")

	// ErrSettlementFailed is returned when the asset transfer fails at
	// settlement time despite having been authorised earlier; no escrow is
	// released in that case.
	ErrSettlementFailed = errors.New("market: settlement failed")

	// ErrOutstandingBids is returned when a seller attempts to re-list an
	// identity that still carries unsettled bids.
	ErrOutstandingBids = errors.New("market: offer has outstanding bids")
)
