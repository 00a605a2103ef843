package fees

import (
	"sync"

	"lendfact-backend/internal/domain/loan"
)

// Policy holds the current protocol fee rate, charged on the interest portion
// of every payment.
type Policy struct {
	mu  sync.Mutex
	bps uint32
}

func NewPolicy(bps uint32) (*Policy, error) {
	if bps > loan.MaxProtocolFeeBps {
		return nil, loan.ErrInvalidProtocolFee
	}
	return &Policy{bps: bps}, nil
}

func (p *Policy) Bps() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bps
}

func (p *Policy) SetBps(bps uint32) error {
	if bps > loan.MaxProtocolFeeBps {
		return loan.ErrInvalidProtocolFee
	}
	p.mu.Lock()
	p.bps = bps
	p.mu.Unlock()
	return nil
}
