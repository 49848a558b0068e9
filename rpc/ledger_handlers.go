package rpc

import (
	"bazaar/native/market"
)

type ledgerMintParams struct {
	To     string `json:"to"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (s *Server) handleLedgerMint(req *RPCRequest) (interface{}, *RPCError) {
	var params ledgerMintParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	to, err := parseAddress(params.To)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	token, err := market.NormalizeSymbol(params.Token)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.payments.Mint(to, token, amount); err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]bool{"minted": true}, nil
}

type ledgerApproveParams struct {
	Owner  string `json:"owner"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (s *Server) handleLedgerApprove(req *RPCRequest) (interface{}, *RPCError) {
	var params ledgerApproveParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	token, err := market.NormalizeSymbol(params.Token)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	amount, err := parseNonNegativeBigInt(params.Amount)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.payments.Approve(owner, token, amount); err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]bool{"approved": true}, nil
}

type ledgerBalanceParams struct {
	Address string `json:"address"`
	Token   string `json:"token"`
}

func (s *Server) handleLedgerBalance(req *RPCRequest) (interface{}, *RPCError) {
	var params ledgerBalanceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	token, err := market.NormalizeSymbol(params.Token)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	balance, err := s.payments.BalanceOf(addr, token)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]string{"balance": bigString(balance)}, nil
}

func (s *Server) handleLedgerAllowance(req *RPCRequest) (interface{}, *RPCError) {
	var params ledgerBalanceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	token, err := market.NormalizeSymbol(params.Token)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	allowance, err := s.payments.Allowance(addr, token)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]string{"allowance": bigString(allowance)}, nil
}

type createCollectionParams struct {
	Symbol    string `json:"symbol"`
	Exclusive bool   `json:"exclusive"`
}

func (s *Server) handleCustodyCreateCollection(req *RPCRequest) (interface{}, *RPCError) {
	var params createCollectionParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	symbol, err := market.NormalizeSymbol(params.Symbol)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.custody.CreateCollection(symbol, params.Exclusive, s.nowUnix()); err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]bool{"created": true}, nil
}

type custodyMintParams struct {
	To         string `json:"to"`
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
	Quantity   string `json:"quantity"`
	Creator    string `json:"creator"`
}

func (s *Server) handleCustodyMint(req *RPCRequest) (interface{}, *RPCError) {
	var params custodyMintParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	to, err := parseAddress(params.To)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	symbol, err := market.NormalizeSymbol(params.Collection)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	quantity, err := parsePositiveBigInt(params.Quantity)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	creator := to
	if params.Creator != "" {
		creator, err = parseAddress(params.Creator)
		if err != nil {
			return nil, invalidParams(err.Error())
		}
	}
	if err := s.custody.Mint(to, symbol, params.AssetID, quantity, creator); err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]bool{"minted": true}, nil
}

type setApprovalParams struct {
	Owner      string `json:"owner"`
	Collection string `json:"collection"`
	Approved   bool   `json:"approved"`
}

func (s *Server) handleCustodySetApproval(req *RPCRequest) (interface{}, *RPCError) {
	var params setApprovalParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	symbol, err := market.NormalizeSymbol(params.Collection)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.custody.SetApproval(owner, symbol, params.Approved); err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]bool{"approved": params.Approved}, nil
}

type custodyBalanceParams struct {
	Owner      string `json:"owner"`
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
}

func (s *Server) handleCustodyBalance(req *RPCRequest) (interface{}, *RPCError) {
	var params custodyBalanceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	symbol, err := market.NormalizeSymbol(params.Collection)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	balance, err := s.custody.BalanceOf(owner, symbol, params.AssetID)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]string{"balance": bigString(balance)}, nil
}
