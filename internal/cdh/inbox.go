package cdh

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"beepsat/internal/domain"
)

// Inbox is the bounded hand-off between uplink transports and the CDH
// task. Transports only enqueue (the interrupt-sets-flag rule); all state
// mutation happens later, inside a CDH step on the scheduler thread.
type Inbox struct {
	ch      chan domain.Command
	dropped atomic.Uint64 // written by any transport goroutine
}

// NewInbox creates an inbox holding up to depth pending commands.
func NewInbox(depth int) *Inbox {
	return &Inbox{ch: make(chan domain.Command, depth)}
}

// Offer enqueues without blocking. A full inbox drops the command; the
// ground resends, the flight side never stalls.
func (i *Inbox) Offer(cmd domain.Command) bool {
	select {
	case i.ch <- cmd:
		return true
	default:
		i.dropped.Add(1)
		log.Warn().Str("cmd", cmd.ID.String()).Msg("command inbox full, dropping")
		return false
	}
}

// Dropped returns how many commands were lost to a full inbox this session.
func (i *Inbox) Dropped() uint64 { return i.dropped.Load() }

// poll removes one pending command without blocking.
func (i *Inbox) poll() (domain.Command, bool) {
	select {
	case cmd := <-i.ch:
		return cmd, true
	default:
		return domain.Command{}, false
	}
}

// Pending returns the number of queued commands.
func (i *Inbox) Pending() int { return len(i.ch) }
