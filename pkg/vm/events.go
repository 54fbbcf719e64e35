package vm

import (
	"sync/atomic"

	"github.com/loopholelabs/logging/types"
)

// EpollManager is the event-loop registration handle handed to
// hot-plug-capable device operations. The registration machinery
// itself lives outside this module.
type EpollManager struct{}

// EventManager owns the epoll handle and the exit flag the execution
// loop observes. It advances on the same thread that drains the API
// bridge.
type EventManager struct {
	log           types.Logger
	epoll         *EpollManager
	exitTriggered atomic.Bool
}

func NewEventManager(log types.Logger) *EventManager {
	return &EventManager{
		log:   log,
		epoll: &EpollManager{},
	}
}

// EpollManager returns the handle required by hot-plug device
// operation contexts.
func (em *EventManager) EpollManager() *EpollManager {
	return em.epoll
}

// TriggerExit flags the exit condition. The execution loop observes
// the flag on its next turn; triggering never blocks on teardown.
func (em *EventManager) TriggerExit() {
	if em.log != nil {
		em.log.Info().Msg("exit event triggered")
	}
	em.exitTriggered.Store(true)
}

func (em *EventManager) ExitTriggered() bool {
	return em.exitTriggered.Load()
}
