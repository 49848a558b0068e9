package rpc

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"bazaar/native/market"
)

// offerRef identifies a listing either by the caller-chosen offer id
// (quantity-bearing collections) or by collection and asset (exclusive
// collections).
type offerRef struct {
	OfferID    uint64 `json:"offerId,omitempty"`
	Collection string `json:"collection,omitempty"`
	AssetID    uint64 `json:"assetId,omitempty"`
}

func (ref offerRef) resolve() ([32]byte, *RPCError) {
	if ref.OfferID != 0 {
		return market.OfferKeyForID(ref.OfferID), nil
	}
	collection, err := market.NormalizeSymbol(ref.Collection)
	if err != nil {
		return [32]byte{}, invalidParams("offerId or collection/assetId required")
	}
	return market.OfferKeyForAsset(collection, ref.AssetID), nil
}

type offerView struct {
	OfferID        uint64 `json:"offerId,omitempty"`
	Collection     string `json:"collection"`
	AssetID        uint64 `json:"assetId"`
	Seller         string `json:"seller"`
	PaymentToken   string `json:"paymentToken"`
	Price          string `json:"price"`
	Quantity       string `json:"quantity"`
	ForSale        bool   `json:"forSale"`
	ForAuction     bool   `json:"forAuction"`
	ExpiresAt      int64  `json:"expiresAt"`
	FeeTier        uint8  `json:"feeTier"`
	RoyaltyPercent uint8  `json:"royaltyPercent"`
	CreatedAt      int64  `json:"createdAt"`
}

type bidView struct {
	Bidder       string `json:"bidder"`
	PaymentToken string `json:"paymentToken"`
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	Escrow       string `json:"escrow"`
	CreatedAt    int64  `json:"createdAt"`
}

type settlementView struct {
	Seller    string `json:"seller"`
	Buyer     string `json:"buyer"`
	Token     string `json:"token"`
	Quantity  string `json:"quantity"`
	Amount    string `json:"amount"`
	Fee       string `json:"fee"`
	Royalty   string `json:"royalty"`
	Net       string `json:"net"`
	Remaining string `json:"remaining"`
}

func hexAddr(addr [20]byte) string {
	return ethcommon.BytesToAddress(addr[:]).Hex()
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newOfferView(o *market.Offer) offerView {
	return offerView{
		OfferID:        o.OfferID,
		Collection:     o.Collection,
		AssetID:        o.AssetID,
		Seller:         hexAddr(o.Seller),
		PaymentToken:   o.PaymentToken,
		Price:          bigString(o.Price),
		Quantity:       bigString(o.Quantity),
		ForSale:        o.ForSale,
		ForAuction:     o.ForAuction,
		ExpiresAt:      o.ExpiresAt,
		FeeTier:        o.FeeTier,
		RoyaltyPercent: o.RoyaltyPercent,
		CreatedAt:      o.CreatedAt,
	}
}

func newBidView(b *market.Bid) bidView {
	return bidView{
		Bidder:       hexAddr(b.Bidder),
		PaymentToken: b.PaymentToken,
		Price:        bigString(b.Price),
		Quantity:     bigString(b.Quantity),
		Escrow:       bigString(b.Escrow),
		CreatedAt:    b.CreatedAt,
	}
}

func newSettlementView(s *market.Settlement) settlementView {
	return settlementView{
		Seller:    hexAddr(s.Seller),
		Buyer:     hexAddr(s.Buyer),
		Token:     s.Token,
		Quantity:  bigString(s.Quantity),
		Amount:    bigString(s.Amount),
		Fee:       bigString(s.Fee),
		Royalty:   bigString(s.Royalty),
		Net:       bigString(s.Net),
		Remaining: bigString(s.Remaining),
	}
}

func (s *Server) recordSettlement(kind string, settlement *market.Settlement) {
	if s.metrics == nil || settlement == nil {
		return
	}
	s.metrics.Settlements.WithLabelValues(kind).Inc()
	if settlement.Amount != nil {
		value, _ := new(big.Float).SetInt(settlement.Amount).Float64()
		s.metrics.Volume.WithLabelValues(settlement.Token).Add(value)
	}
}

type createOfferParams struct {
	OfferID        uint64 `json:"offerId,omitempty"`
	Seller         string `json:"seller"`
	Collection     string `json:"collection"`
	AssetID        uint64 `json:"assetId"`
	PaymentToken   string `json:"paymentToken"`
	Price          string `json:"price"`
	Quantity       string `json:"quantity"`
	ForSale        bool   `json:"forSale"`
	ForAuction     bool   `json:"forAuction"`
	ExpiresAt      int64  `json:"expiresAt"`
	FeeTier        uint8  `json:"feeTier"`
	RoyaltyPercent uint8  `json:"royaltyPercent,omitempty"`
	Caller         string `json:"caller"`
}

func (s *Server) handleCreateOffer(req *RPCRequest) (interface{}, *RPCError) {
	var params createOfferParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	price, err := parsePositiveBigInt(params.Price)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	quantity, err := parsePositiveBigInt(params.Quantity)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	offer, err := s.engine.CreateOffer(params.OfferID, seller, params.Collection, params.AssetID, params.PaymentToken, price, quantity, params.ForSale, params.ForAuction, params.ExpiresAt, params.FeeTier, params.RoyaltyPercent, caller)
	if err != nil {
		return nil, errorToRPC(err)
	}
	s.logger.Info("offer created", "collection", offer.Collection, "assetId", offer.AssetID, "seller", hexAddr(offer.Seller))
	return newOfferView(offer), nil
}

func (s *Server) handleGetOffer(req *RPCRequest) (interface{}, *RPCError) {
	var ref offerRef
	if rpcErr := decodeParams(req, &ref); rpcErr != nil {
		return nil, rpcErr
	}
	key, rpcErr := ref.resolve()
	if rpcErr != nil {
		return nil, rpcErr
	}
	offer, err := s.engine.GetOffer(key)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return newOfferView(offer), nil
}

type setPriceParams struct {
	offerRef
	Price  string `json:"price"`
	Caller string `json:"caller"`
}

func (s *Server) handleSetPrice(req *RPCRequest) (interface{}, *RPCError) {
	var params setPriceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	key, rpcErr := params.resolve()
	if rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	price, err := parsePositiveBigInt(params.Price)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.engine.SetPrice(key, price, caller); err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]bool{"updated": true}, nil
}

type setExpiryParams struct {
	offerRef
	ExpiresAt int64  `json:"expiresAt"`
	Caller    string `json:"caller"`
}

func (s *Server) handleSetExpiry(req *RPCRequest) (interface{}, *RPCError) {
	var params setExpiryParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	key, rpcErr := params.resolve()
	if rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.engine.SetExpiry(key, params.ExpiresAt, caller); err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]bool{"updated": true}, nil
}

type withdrawOfferParams struct {
	offerRef
	Caller string `json:"caller"`
}

func (s *Server) handleWithdrawOffer(req *RPCRequest) (interface{}, *RPCError) {
	var params withdrawOfferParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	key, rpcErr := params.resolve()
	if rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.engine.WithdrawOffer(key, caller); err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]bool{"withdrawn": true}, nil
}

type placeBidParams struct {
	offerRef
	PaymentToken string `json:"paymentToken"`
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	Caller       string `json:"caller"`
}

func (s *Server) handlePlaceBid(req *RPCRequest) (interface{}, *RPCError) {
	var params placeBidParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	key, rpcErr := params.resolve()
	if rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	price, err := parsePositiveBigInt(params.Price)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	quantity, err := parsePositiveBigInt(params.Quantity)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	bid, err := s.engine.PlaceBid(key, params.PaymentToken, price, quantity, caller)
	if err != nil {
		return nil, errorToRPC(err)
	}
	s.logger.Info("bid placed", "bidder", hexAddr(bid.Bidder), "escrow", bigString(bid.Escrow))
	return newBidView(bid), nil
}

type cancelBidParams struct {
	offerRef
	Bidder string `json:"bidder"`
	Caller string `json:"caller"`
}

func (s *Server) handleCancelBid(req *RPCRequest) (interface{}, *RPCError) {
	var params cancelBidParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	key, rpcErr := params.resolve()
	if rpcErr != nil {
		return nil, rpcErr
	}
	bidder, err := parseAddress(params.Bidder)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.engine.CancelBid(key, bidder, caller); err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]bool{"cancelled": true}, nil
}

type getBidParams struct {
	offerRef
	Bidder string `json:"bidder"`
}

func (s *Server) handleGetBid(req *RPCRequest) (interface{}, *RPCError) {
	var params getBidParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	key, rpcErr := params.resolve()
	if rpcErr != nil {
		return nil, rpcErr
	}
	bidder, err := parseAddress(params.Bidder)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	bid, err := s.engine.GetBid(key, bidder)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return newBidView(bid), nil
}

type acceptBidParams struct {
	offerRef
	Bidder string `json:"bidder"`
	Caller string `json:"caller"`
}

func (s *Server) handleAcceptBid(req *RPCRequest) (interface{}, *RPCError) {
	var params acceptBidParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	key, rpcErr := params.resolve()
	if rpcErr != nil {
		return nil, rpcErr
	}
	bidder, err := parseAddress(params.Bidder)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	settlement, err := s.engine.AcceptBid(key, bidder, caller)
	if err != nil {
		return nil, errorToRPC(err)
	}
	s.recordSettlement("bid_accepted", settlement)
	s.logger.Info("bid accepted", "seller", hexAddr(settlement.Seller), "buyer", hexAddr(settlement.Buyer), "amount", bigString(settlement.Amount))
	return newSettlementView(settlement), nil
}

type buyOfferParams struct {
	offerRef
	Quantity string `json:"quantity"`
	Caller   string `json:"caller"`
	Attached string `json:"attached"`
}

func (s *Server) handleBuyOffer(req *RPCRequest) (interface{}, *RPCError) {
	var params buyOfferParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	key, rpcErr := params.resolve()
	if rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	quantity, err := parsePositiveBigInt(params.Quantity)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	attached, err := parseNonNegativeBigInt(params.Attached)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	settlement, err := s.engine.BuyOffer(key, quantity, caller, attached)
	if err != nil {
		return nil, errorToRPC(err)
	}
	s.recordSettlement("purchase", settlement)
	s.logger.Info("purchase settled", "seller", hexAddr(settlement.Seller), "buyer", hexAddr(settlement.Buyer), "amount", bigString(settlement.Amount))
	return newSettlementView(settlement), nil
}

type setFeeShareParams struct {
	Tier   uint8  `json:"tier"`
	Share  uint8  `json:"share"`
	Caller string `json:"caller"`
}

func (s *Server) handleSetFeeShare(req *RPCRequest) (interface{}, *RPCError) {
	var params setFeeShareParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.policy.SetShare(params.Tier, params.Share, caller); err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]bool{"updated": true}, nil
}

type getFeeShareParams struct {
	Tier uint8 `json:"tier"`
}

func (s *Server) handleGetFeeShare(req *RPCRequest) (interface{}, *RPCError) {
	var params getFeeShareParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	share, err := s.policy.Share(params.Tier)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]uint8{"share": share}, nil
}
