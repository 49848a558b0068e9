package fees

import (
	"errors"
	"fmt"
	"math/big"

	"bazaar/core/events"
	"bazaar/core/types"
	nativecommon "bazaar/native/common"
)

var (
	errNilState        = errors.New("fee policy: state not configured")
	ErrUnauthorized    = errors.New("fee policy: caller is not the operator")
	ErrShareOutOfRange = errors.New("fee policy: share percent out of range")
)

const moduleName = "fees"

// EventTypeShareUpdated is emitted whenever the operator rewrites a tier.
const EventTypeShareUpdated = "fees.share_updated"

type policyState interface {
	FeeShareGet(tier uint8) (uint8, bool, error)
	FeeSharePut(tier uint8, share uint8) error
}

type feeEvent struct {
	evt *types.Event
}

func (e feeEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e feeEvent) Event() *types.Event { return e.evt }

// Policy owns the global fee-share table: a mapping from a small tier key to
// the percent of every settlement retained by the exchange. Only the privileged
// operator may rewrite entries; the settlement engine reads the table on every
// settlement so updates are forward-effective and never retroactive.
type Policy struct {
	state    policyState
	operator [20]byte
	emitter  events.Emitter
	pauses   nativecommon.PauseView
}

// NewPolicy creates a fee policy bound to the given operator address.
func NewPolicy(operator [20]byte) *Policy {
	return &Policy{
		operator: operator,
		emitter:  events.NoopEmitter{},
	}
}

// SetState configures the state backend used by the policy.
func (p *Policy) SetState(state policyState) { p.state = state }

// SetPauses configures the pause view consulted before mutations.
func (p *Policy) SetPauses(v nativecommon.PauseView) { p.pauses = v }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (p *Policy) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		p.emitter = events.NoopEmitter{}
		return
	}
	p.emitter = emitter
}

// Operator returns the privileged operator address fixed at initialisation.
func (p *Policy) Operator() [20]byte { return p.operator }

// SetShare rewrites the share for a tier. Only the operator may call it.
func (p *Policy) SetShare(tier uint8, share uint8, caller [20]byte) error {
	if p == nil || p.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(p.pauses, moduleName); err != nil {
		return err
	}
	if caller != p.operator {
		return ErrUnauthorized
	}
	if share > 100 {
		return fmt.Errorf("%w: %d", ErrShareOutOfRange, share)
	}
	if err := p.state.FeeSharePut(tier, share); err != nil {
		return err
	}
	if p.emitter != nil {
		p.emitter.Emit(feeEvent{evt: NewShareUpdatedEvent(tier, share)})
	}
	return nil
}

// Share returns the configured percent for the tier, zero when unset.
func (p *Policy) Share(tier uint8) (uint8, error) {
	if p == nil || p.state == nil {
		return 0, errNilState
	}
	share, ok, err := p.state.FeeShareGet(tier)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return share, nil
}

// NewShareUpdatedEvent returns the canonical payload for a tier update.
func NewShareUpdatedEvent(tier uint8, share uint8) *types.Event {
	return &types.Event{
		Type: EventTypeShareUpdated,
		Attributes: map[string]string{
			"tier":  fmt.Sprintf("%d", tier),
			"share": fmt.Sprintf("%d", share),
		},
	}
}

// Split divides a settlement amount into the exchange fee, the creator royalty
// and the seller's net proceeds. Both cuts round down so that any integer
// remainder stays with the seller; the three parts always sum to the amount.
func Split(amount *big.Int, sharePercent, royaltyPercent uint8) (fee, royalty, net *big.Int) {
	total := big.NewInt(0)
	if amount != nil && amount.Sign() > 0 {
		total = new(big.Int).Set(amount)
	}
	fee = percentOf(total, sharePercent)
	royalty = percentOf(total, royaltyPercent)
	net = new(big.Int).Sub(total, fee)
	net.Sub(net, royalty)
	if net.Sign() < 0 {
		// Shares above 100% combined cannot happen through SetShare and
		// offer sanitisation, but never let the split create value.
		royalty = new(big.Int).Sub(total, fee)
		net = big.NewInt(0)
	}
	return fee, royalty, net
}

func percentOf(amount *big.Int, percent uint8) *big.Int {
	if amount == nil || amount.Sign() <= 0 || percent == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(percent)))
	return out.Div(out, big.NewInt(100))
}
