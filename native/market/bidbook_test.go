package market

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
)

func TestPlaceBidEscrowsExactAmount(t *testing.T) {
	env := newTestEnv(t)
	seller := addr(0x01)
	bidder := addr(0x02)
	offer := env.listQuantityOffer(t, 1, seller, 100, 10)
	env.payments.fund(bidder, testToken, 5_000)

	bid, err := env.engine.PlaceBid(offer.Key, testToken, big.NewInt(90), big.NewInt(10), bidder)
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}
	want := big.NewInt(900)
	if bid.Escrow.Cmp(want) != 0 {
		t.Fatalf("escrow = %s, want %s", bid.Escrow, want)
	}
	if got := env.payments.balance(bidder, testToken); got.Cmp(big.NewInt(4_100)) != 0 {
		t.Fatalf("bidder balance = %s, want 4100", got)
	}
	if got := env.payments.vaultBalance(testToken); got.Cmp(want) != 0 {
		t.Fatalf("vault = %s, want %s", got, want)
	}
}

func TestPlaceBidReplacesPriorWithoutDoubleEscrow(t *testing.T) {
	env := newTestEnv(t)
	seller := addr(0x01)
	bidder := addr(0x02)
	offer := env.listQuantityOffer(t, 1, seller, 100, 10)
	env.payments.fund(bidder, testToken, 5_000)

	if _, err := env.engine.PlaceBid(offer.Key, testToken, big.NewInt(90), big.NewInt(10), bidder); err != nil {
		t.Fatalf("first bid: %v", err)
	}
	bid, err := env.engine.PlaceBid(offer.Key, testToken, big.NewInt(95), big.NewInt(10), bidder)
	if err != nil {
		t.Fatalf("replacement bid: %v", err)
	}
	if bid.Escrow.Cmp(big.NewInt(950)) != 0 {
		t.Fatalf("escrow = %s, want 950", bid.Escrow)
	}
	// Only the live escrow may be held; the replaced 900 must be back.
	if got := env.payments.vaultBalance(testToken); got.Cmp(big.NewInt(950)) != 0 {
		t.Fatalf("vault = %s, want 950", got)
	}
	if got := env.payments.balance(bidder, testToken); got.Cmp(big.NewInt(4_050)) != 0 {
		t.Fatalf("bidder balance = %s, want 4050", got)
	}
	count, err := env.state.OfferBidCount(offer.Key)
	if err != nil {
		t.Fatalf("bid count: %v", err)
	}
	if count != 1 {
		t.Fatalf("bid count = %d, want 1", count)
	}
}

func TestPlaceBidLowersFullyEscrowedBid(t *testing.T) {
	env := newTestEnv(t)
	seller := addr(0x01)
	bidder := addr(0x02)
	offer := env.listQuantityOffer(t, 1, seller, 100, 10)
	env.payments.fund(bidder, testToken, 1_000)

	if _, err := env.engine.PlaceBid(offer.Key, testToken, big.NewInt(100), big.NewInt(10), bidder); err != nil {
		t.Fatalf("first bid: %v", err)
	}
	if got := env.payments.balance(bidder, testToken); got.Sign() != 0 {
		t.Fatalf("bidder balance = %s, want 0", got)
	}
	// Every token is escrowed; lowering the bid must still work because
	// only the difference moves.
	bid, err := env.engine.PlaceBid(offer.Key, testToken, big.NewInt(95), big.NewInt(10), bidder)
	if err != nil {
		t.Fatalf("lowered re-bid: %v", err)
	}
	if bid.Escrow.Cmp(big.NewInt(950)) != 0 {
		t.Fatalf("escrow = %s, want 950", bid.Escrow)
	}
	if got := env.payments.balance(bidder, testToken); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("bidder balance = %s, want 50", got)
	}
	if got := env.payments.vaultBalance(testToken); got.Cmp(big.NewInt(950)) != 0 {
		t.Fatalf("vault = %s, want 950", got)
	}
	// Raising again pulls only the shortfall.
	if _, err := env.engine.PlaceBid(offer.Key, testToken, big.NewInt(100), big.NewInt(10), bidder); err != nil {
		t.Fatalf("raised re-bid: %v", err)
	}
	if got := env.payments.balance(bidder, testToken); got.Sign() != 0 {
		t.Fatalf("bidder balance = %s, want 0 after raise", got)
	}
	if got := env.payments.vaultBalance(testToken); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("vault = %s, want 1000 after raise", got)
	}
	count, err := env.state.OfferBidCount(offer.Key)
	if err != nil {
		t.Fatalf("bid count: %v", err)
	}
	if count != 1 {
		t.Fatalf("bid count = %d, want 1", count)
	}
}

func TestPlaceBidRejectsSaleOnlyOffer(t *testing.T) {
	env := newTestEnv(t)
	seller := addr(0x01)
	bidder := addr(0x02)
	env.custody.grant(seller, testCollection, testAssetID, 5)
	offer, err := env.engine.CreateOffer(1, seller, testCollection, testAssetID, testToken, big.NewInt(100), big.NewInt(5), true, false, env.now+3600, 0, 0, seller)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	env.payments.fund(bidder, testToken, 1_000)
	if _, err := env.engine.PlaceBid(offer.Key, testToken, big.NewInt(100), big.NewInt(1), bidder); !errors.Is(err, ErrOfferInactive) {
		t.Fatalf("expected ErrOfferInactive, got %v", err)
	}
}

func TestPlaceBidRejectsExpiredOffer(t *testing.T) {
	env := newTestEnv(t)
	seller := addr(0x01)
	bidder := addr(0x02)
	offer := env.listQuantityOffer(t, 1, seller, 100, 10)
	env.now = offer.ExpiresAt + 1
	env.payments.fund(bidder, testToken, 1_000)
	if _, err := env.engine.PlaceBid(offer.Key, testToken, big.NewInt(100), big.NewInt(1), bidder); !errors.Is(err, ErrOfferInactive) {
		t.Fatalf("expected ErrOfferInactive, got %v", err)
	}
}

func TestPlaceBidRejectsWrongToken(t *testing.T) {
	env := newTestEnv(t)
	seller := addr(0x01)
	bidder := addr(0x02)
	offer := env.listQuantityOffer(t, 1, seller, 100, 10)
	env.payments.fund(bidder, "OTHER", 1_000)
	if _, err := env.engine.PlaceBid(offer.Key, "OTHER", big.NewInt(100), big.NewInt(1), bidder); !errors.Is(err, ErrEscrowFailed) {
		t.Fatalf("expected ErrEscrowFailed, got %v", err)
	}
}

func TestPlaceBidRejectsExcessQuantity(t *testing.T) {
	env := newTestEnv(t)
	seller := addr(0x01)
	bidder := addr(0x02)
	offer := env.listQuantityOffer(t, 1, seller, 100, 10)
	env.payments.fund(bidder, testToken, 10_000)
	if _, err := env.engine.PlaceBid(offer.Key, testToken, big.NewInt(100), big.NewInt(11), bidder); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestPlaceBidPullFailureLeavesNothingBehind(t *testing.T) {
	env := newTestEnv(t)
	seller := addr(0x01)
	bidder := addr(0x02)
	offer := env.listQuantityOffer(t, 1, seller, 100, 10)
	env.payments.pullErr = fmt.Errorf("allowance exhausted")
	if _, err := env.engine.PlaceBid(offer.Key, testToken, big.NewInt(100), big.NewInt(1), bidder); !errors.Is(err, ErrEscrowFailed) {
		t.Fatalf("expected ErrEscrowFailed, got %v", err)
	}
	if _, ok := env.state.BidGet(offer.Key, bidder); ok {
		t.Fatalf("bid must not be stored when escrow fails")
	}
	count, _ := env.state.OfferBidCount(offer.Key)
	if count != 0 {
		t.Fatalf("bid count = %d, want 0", count)
	}
}

func TestCancelBidRefundsFullEscrow(t *testing.T) {
	env := newTestEnv(t)
	seller := addr(0x01)
	bidder := addr(0x02)
	offer := env.listQuantityOffer(t, 1, seller, 100, 10)
	env.payments.fund(bidder, testToken, 2_000)
	if _, err := env.engine.PlaceBid(offer.Key, testToken, big.NewInt(100), big.NewInt(10), bidder); err != nil {
		t.Fatalf("place bid: %v", err)
	}
	if err := env.engine.CancelBid(offer.Key, bidder, addr(0x03)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for third party, got %v", err)
	}
	if err := env.engine.CancelBid(offer.Key, bidder, bidder); err != nil {
		t.Fatalf("cancel bid: %v", err)
	}
	if got := env.payments.balance(bidder, testToken); got.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("bidder balance = %s, want 2000", got)
	}
	if _, ok := env.state.BidGet(offer.Key, bidder); ok {
		t.Fatalf("bid must be removed after cancel")
	}
	if err := env.engine.CancelBid(offer.Key, bidder, bidder); !errors.Is(err, ErrBidNotFound) {
		t.Fatalf("expected ErrBidNotFound on repeat cancel, got %v", err)
	}
}

func TestCancelBidWorksAfterOfferDeleted(t *testing.T) {
	env := newTestEnv(t)
	seller := addr(0x01)
	bidder := addr(0x02)
	buyer := addr(0x04)
	offer := env.listQuantityOffer(t, 1, seller, 100, 2)
	env.payments.fund(bidder, testToken, 1_000)
	if _, err := env.engine.PlaceBid(offer.Key, testToken, big.NewInt(80), big.NewInt(1), bidder); err != nil {
		t.Fatalf("place bid: %v", err)
	}
	env.payments.fund(buyer, "BZR", 1_000)
	if _, err := env.engine.BuyOffer(offer.Key, big.NewInt(2), buyer, big.NewInt(200)); err != nil {
		t.Fatalf("buy out offer: %v", err)
	}
	// The listing is gone but the straggler bid must still be refundable.
	if err := env.engine.CancelBid(offer.Key, bidder, bidder); err != nil {
		t.Fatalf("cancel after sellout: %v", err)
	}
	if got := env.payments.balance(bidder, testToken); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("bidder balance = %s, want 1000", got)
	}
}
