package types

import "math/big"

// Account holds the payment-side state for a single address: fungible token
// balances plus the allowances the owner has granted to the exchange vault.
// Asset holdings live in the custody ledger, not here.
type Account struct {
	Nonce      uint64              `json:"nonce"`
	Balances   map[string]*big.Int `json:"balances"`
	Allowances map[string]*big.Int `json:"allowances,omitempty"`
}

// NewAccount returns an empty account with initialised maps.
func NewAccount() *Account {
	return &Account{
		Balances:   make(map[string]*big.Int),
		Allowances: make(map[string]*big.Int),
	}
}

// Balance returns the balance held in the given token, never nil.
func (a *Account) Balance(token string) *big.Int {
	if a == nil || a.Balances == nil {
		return big.NewInt(0)
	}
	if bal, ok := a.Balances[token]; ok && bal != nil {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Allowance returns the amount the owner has authorised the exchange to pull
// in the given token, never nil.
func (a *Account) Allowance(token string) *big.Int {
	if a == nil || a.Allowances == nil {
		return big.NewInt(0)
	}
	if amt, ok := a.Allowances[token]; ok && amt != nil {
		return new(big.Int).Set(amt)
	}
	return big.NewInt(0)
}

// Clone returns a deep copy of the account so callers can safely mutate the
// copy without affecting the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return NewAccount()
	}
	clone := NewAccount()
	clone.Nonce = a.Nonce
	for token, bal := range a.Balances {
		if bal != nil {
			clone.Balances[token] = new(big.Int).Set(bal)
		}
	}
	for token, amt := range a.Allowances {
		if amt != nil {
			clone.Allowances[token] = new(big.Int).Set(amt)
		}
	}
	return clone
}
