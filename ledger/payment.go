package ledger

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"bazaar/core/types"
)

var (
	errNilPaymentState = errors.New("payment ledger: state not configured")

	// ErrInsufficientBalance is returned when a transfer or pull exceeds
	// the payer's balance.
	ErrInsufficientBalance = errors.New("payment ledger: insufficient balance")

	// ErrInsufficientAllowance is returned when a pull exceeds what the
	// payer has authorised the exchange to take.
	ErrInsufficientAllowance = errors.New("payment ledger: insufficient allowance")
)

// VaultAddress is the address holding all escrowed and in-flight payment
// value. It is derived deterministically so every deployment agrees on it.
var VaultAddress = moduleAddress("bazaar/payment/vault")

func moduleAddress(name string) [20]byte {
	hash := ethcrypto.Keccak256([]byte(name))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

type paymentState interface {
	AccountGet(addr [20]byte) (*types.Account, error)
	AccountPut(addr [20]byte, acc *types.Account) error
}

// PaymentLedger moves fungible payment value between addresses. Escrowed
// funds live under the vault address and are exclusively mutable through Pull,
// Push and Deposit; no other component touches them.
type PaymentLedger struct {
	state paymentState
}

// NewPaymentLedger creates a payment ledger over the given state backend.
func NewPaymentLedger(state paymentState) *PaymentLedger {
	return &PaymentLedger{state: state}
}

func (l *PaymentLedger) ready() error {
	if l == nil || l.state == nil {
		return errNilPaymentState
	}
	return nil
}

func positiveAmount(amount *big.Int) (*big.Int, error) {
	if amount == nil {
		return big.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("payment ledger: negative amount")
	}
	return new(big.Int).Set(amount), nil
}

// BalanceOf returns the holder's balance in the given token.
func (l *PaymentLedger) BalanceOf(addr [20]byte, token string) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	acc, err := l.state.AccountGet(addr)
	if err != nil {
		return nil, err
	}
	return acc.Balance(token), nil
}

// Allowance returns how much the owner has authorised the exchange to pull.
func (l *PaymentLedger) Allowance(owner [20]byte, token string) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	acc, err := l.state.AccountGet(owner)
	if err != nil {
		return nil, err
	}
	return acc.Allowance(token), nil
}

// Mint credits freshly issued tokens to an address. Caller gating is the
// operator's responsibility at the RPC surface.
func (l *PaymentLedger) Mint(to [20]byte, token string, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	amt, err := positiveAmount(amount)
	if err != nil {
		return err
	}
	if amt.Sign() == 0 {
		return nil
	}
	acc, err := l.state.AccountGet(to)
	if err != nil {
		return err
	}
	acc.Balances[token] = new(big.Int).Add(acc.Balance(token), amt)
	return l.state.AccountPut(to, acc)
}

// Approve sets the amount the exchange may pull from the owner in the token.
// The allowance is absolute, not additive.
func (l *PaymentLedger) Approve(owner [20]byte, token string, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	amt, err := positiveAmount(amount)
	if err != nil {
		return err
	}
	acc, err := l.state.AccountGet(owner)
	if err != nil {
		return err
	}
	if acc.Allowances == nil {
		acc.Allowances = make(map[string]*big.Int)
	}
	acc.Allowances[token] = amt
	return l.state.AccountPut(owner, acc)
}

// Transfer moves amount between two ordinary addresses.
func (l *PaymentLedger) Transfer(from, to [20]byte, token string, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	amt, err := positiveAmount(amount)
	if err != nil {
		return err
	}
	if amt.Sign() == 0 {
		return nil
	}
	return l.move(from, to, token, amt)
}

// Pull moves amount from the payer to the vault, consuming the payer's
// standing allowance. This is the escrow path used when a bid is placed.
func (l *PaymentLedger) Pull(payer [20]byte, token string, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	amt, err := positiveAmount(amount)
	if err != nil {
		return err
	}
	if amt.Sign() == 0 {
		return nil
	}
	acc, err := l.state.AccountGet(payer)
	if err != nil {
		return err
	}
	allowance := acc.Allowance(token)
	if allowance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance, amt)
	}
	if acc.Balance(token).Cmp(amt) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, acc.Balance(token), amt)
	}
	acc.Allowances[token] = new(big.Int).Sub(allowance, amt)
	if err := l.state.AccountPut(payer, acc); err != nil {
		return err
	}
	return l.move(payer, VaultAddress, token, amt)
}

// Push releases amount from the vault to the payee.
func (l *PaymentLedger) Push(payee [20]byte, token string, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	amt, err := positiveAmount(amount)
	if err != nil {
		return err
	}
	if amt.Sign() == 0 {
		return nil
	}
	return l.move(VaultAddress, payee, token, amt)
}

// Deposit moves amount from the payer to the vault without an allowance,
// modelling value attached directly to a purchase call.
func (l *PaymentLedger) Deposit(payer [20]byte, token string, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	amt, err := positiveAmount(amount)
	if err != nil {
		return err
	}
	if amt.Sign() == 0 {
		return nil
	}
	return l.move(payer, VaultAddress, token, amt)
}

func (l *PaymentLedger) move(from, to [20]byte, token string, amt *big.Int) error {
	fromAcc, err := l.state.AccountGet(from)
	if err != nil {
		return err
	}
	balance := fromAcc.Balance(token)
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, balance, amt)
	}
	fromAcc.Balances[token] = new(big.Int).Sub(balance, amt)
	if err := l.state.AccountPut(from, fromAcc); err != nil {
		return err
	}
	toAcc, err := l.state.AccountGet(to)
	if err != nil {
		return err
	}
	toAcc.Balances[token] = new(big.Int).Add(toAcc.Balance(token), amt)
	return l.state.AccountPut(to, toAcc)
}
