package cdh

import (
	"time"

	"github.com/rs/zerolog/log"

	"beepsat/internal/domain"
)

// Interlock is the two-step safety gate for destructive commands. An ARM
// command sets a flag bit (persisted) with an in-memory expiry deadline;
// the flag clears after one use or after the window lapses, whichever
// comes first. Deadlines are session-local, so any flag still set at boot
// is stale and cleared.
type Interlock struct {
	store    domain.StateStore
	window   time.Duration
	deadline map[domain.ArmFlag]time.Time
}

// NewInterlock creates the interlock and clears flags left over from a
// previous session.
func NewInterlock(store domain.StateStore, window time.Duration) (*Interlock, error) {
	i := &Interlock{
		store:    store,
		window:   window,
		deadline: make(map[domain.ArmFlag]time.Time),
	}
	if store.Counters().ArmedFlags != 0 {
		log.Warn().Msg("clearing stale armed flags from previous session")
		if err := store.Mutate(func(c *domain.Counters) { c.ArmedFlags = 0 }); err != nil {
			return nil, err
		}
	}
	return i, nil
}

// Arm sets the flag and starts its expiry window.
func (i *Interlock) Arm(flag domain.ArmFlag, now time.Time) error {
	if err := i.store.Mutate(func(c *domain.Counters) { c.ArmedFlags |= flag }); err != nil {
		return err
	}
	i.deadline[flag] = now.Add(i.window)
	log.Info().Str("flag", flag.String()).Time("expires", i.deadline[flag]).Msg("armed")
	return nil
}

// Disarm clears the flag.
func (i *Interlock) Disarm(flag domain.ArmFlag) error {
	delete(i.deadline, flag)
	return i.store.Mutate(func(c *domain.Counters) { c.ArmedFlags &^= flag })
}

// Consume checks the flag and, if armed and unexpired, clears it so the
// arm is good for exactly one destructive command.
func (i *Interlock) Consume(flag domain.ArmFlag, now time.Time) (bool, error) {
	if i.store.Counters().ArmedFlags&flag == 0 {
		return false, nil
	}
	deadline, ok := i.deadline[flag]
	if !ok || now.After(deadline) {
		if err := i.Disarm(flag); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := i.Disarm(flag); err != nil {
		return false, err
	}
	return true, nil
}

// Expire clears any flag whose window has lapsed. Called once per CDH
// invocation so a stale arm never enables an unintended later command.
func (i *Interlock) Expire(now time.Time) {
	for flag, deadline := range i.deadline {
		if now.After(deadline) {
			log.Info().Str("flag", flag.String()).Msg("arm window expired")
			if err := i.Disarm(flag); err != nil {
				log.Error().Err(err).Str("flag", flag.String()).Msg("disarm on expiry failed")
			}
		}
	}
}

// Armed reports whether the flag is currently set and unexpired.
func (i *Interlock) Armed(flag domain.ArmFlag, now time.Time) bool {
	if i.store.Counters().ArmedFlags&flag == 0 {
		return false
	}
	deadline, ok := i.deadline[flag]
	return ok && !now.After(deadline)
}
