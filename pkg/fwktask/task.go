// Package fwktask implements the framework's task kernel: spawning a
// manager with a user-supplied init and message handler, owning its
// receive loop, and freeing consumed message envelopes under the same
// rules the firmware's _fwk_task_proc observes.
package fwktask

import (
	"fmt"
	"sync"
	"time"

	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
	"github.com/dbehnke/dmr-nexus/pkg/logger"
)

// OnInit runs exactly once before a task enters its receive loop. A
// non-nil error halts the task permanently - there is no supervisor to
// restart a manager whose init failed, on a real device or here.
type OnInit func(data any) error

// OnMessage handles one message pulled off the manager's mailbox.
type OnMessage func(msg *fwkmsg.Message, data any)

// Spec describes one manager task to start.
type Spec struct {
	ManagerID   fwkmsg.ManagerID
	Name        string
	OnInit      OnInit
	OnMessage   OnMessage
	PrivateData any
	PollDelay   time.Duration
	Priority    int

	// OnFree, if set, is invoked whenever the kernel's bookkeeping
	// decides an envelope (and, separately, its payload) should be
	// considered released. It exists so tests can verify the
	// exactly-once-free invariant without the kernel performing a
	// literal free() - Go's GC owns the memory.
	OnFree func(msg *fwkmsg.Message, what string)
}

const maxPriority = 31 // mirrors configMAX_PRIORITIES-1 in the firmware build this is ported from

// mapPriority maps an abstract 0(highest)..N priority onto the host
// scheduler's priority space, matching FWK_Task_Start's inversion.
// Invalid priorities fall back to the lowest.
func mapPriority(p int) uint32 {
	if p >= 0 && p <= maxPriority {
		return uint32(maxPriority - p)
	}
	return 0
}

type taskInfo struct {
	name     string
	priority uint32
}

// Kernel owns the set of started tasks and their registry metadata.
type Kernel struct {
	bus *fwkmsg.Bus
	log *logger.Logger

	mu    sync.RWMutex
	infos map[fwkmsg.ManagerID]taskInfo
}

// NewKernel creates a Kernel bound to bus, logging through log.
func NewKernel(bus *fwkmsg.Bus, log *logger.Logger) *Kernel {
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	return &Kernel{
		bus:   bus,
		log:   log.WithComponent("fwktask"),
		infos: make(map[fwkmsg.ManagerID]taskInfo),
	}
}

// StartTask registers the manager's mailbox, records its registry
// entry, and spawns its receive loop in a new goroutine.
func (k *Kernel) StartTask(spec Spec) error {
	if spec.OnMessage == nil {
		return fmt.Errorf("fwktask: %s: OnMessage is required", spec.Name)
	}
	k.bus.RegisterMailbox(spec.ManagerID)

	k.mu.Lock()
	k.infos[spec.ManagerID] = taskInfo{name: spec.Name, priority: mapPriority(spec.Priority)}
	k.mu.Unlock()

	k.log.Debug("task starting",
		logger.String("name", spec.Name),
		logger.String("manager", spec.ManagerID.String()))

	go k.run(spec)
	return nil
}

func (k *Kernel) run(spec Spec) {
	if spec.OnInit != nil {
		if err := spec.OnInit(spec.PrivateData); err != nil {
			k.log.Error("task init failed, halting",
				logger.String("name", spec.Name), logger.Error(err))
			select {} // mirrors the firmware's while(1);: no supervisor restarts a wedged manager
		}
	}

	for {
		msg := k.bus.Get(spec.ManagerID)
		k.log.Verbose("message received",
			logger.String("manager", spec.ManagerID.String()),
			logger.String("msg", fwkmsg.NameOf(msg.ID)))

		spec.OnMessage(msg, spec.PrivateData)
		k.release(spec, msg)

		if spec.PollDelay > 0 {
			time.Sleep(spec.PollDelay)
		}
	}
}

// release applies the firmware's free-after-consumed rules: an
// ordinary task frees the payload (when its FreeAfterConsumed flag is
// set) and then the envelope. The multicore bridge task never frees a
// locally-originated multicore
// message inline (it retains the envelope until serialization
// completes), except when that message's scope is Remote, in which
// case the bridge frees both the payload and the envelope itself once
// OnMessage (which performed the send) returns.
func (k *Kernel) release(spec Spec, msg *fwkmsg.Message) {
	if !msg.OwnerFrees {
		return
	}

	isBridgeLocalMulticore := spec.ManagerID == fwkmsg.TaskMulticore && msg.Multicore.IsMulticoreMessage
	if !isBridgeLocalMulticore {
		if msg.Payload.FreeAfterConsumed {
			k.free(spec, msg, "payload")
		}
		k.free(spec, msg, "envelope")
	}

	if spec.ManagerID == fwkmsg.TaskMulticore && msg.Multicore.IsMulticoreMessage && msg.Scope == fwkmsg.ScopeRemote {
		if msg.Payload.FreeAfterConsumed {
			msg.Payload.FreeAfterConsumed = false
			k.free(spec, msg, "payload")
		}
		k.free(spec, msg, "envelope")
	}
}

func (k *Kernel) free(spec Spec, msg *fwkmsg.Message, what string) {
	if spec.OnFree != nil {
		spec.OnFree(msg, what)
	}
}

// TaskRegistered reports whether a manager has been started.
func (k *Kernel) TaskRegistered(id fwkmsg.ManagerID) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.infos[id]
	return ok
}

// TaskCountBelow counts registered tasks with id < boundary, mirroring
// FWK_Task_GetCount's kFWKTaskID_APPStart cutoff.
func (k *Kernel) TaskCountBelow(boundary fwkmsg.ManagerID) int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	n := 0
	for id := range k.infos {
		if id < boundary {
			n++
		}
	}
	return n
}

// TaskInfo returns the registered name and mapped priority for id.
func (k *Kernel) TaskInfo(id fwkmsg.ManagerID) (name string, priority uint32, ok bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	info, found := k.infos[id]
	if !found {
		return "", 0, false
	}
	return info.name, info.priority, true
}
