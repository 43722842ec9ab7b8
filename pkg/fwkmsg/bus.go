// Package fwkmsg implements the framework's typed message-passing
// substrate: per-manager mailboxes, enqueue-from-task and
// enqueue-from-interrupt paths, and the multicore fan-out rules a
// message's Scope and MulticoreFlags encode.
package fwkmsg

import (
	"fmt"
	"sync"

	"github.com/dbehnke/dmr-nexus/pkg/logger"
)

// DefaultMailboxDepth mirrors the firmware's mainQUEUE_LENGTH.
const DefaultMailboxDepth = 10

// Bus owns one bounded FIFO mailbox per manager and applies the
// multicore fan-out rules on every Put / PutFromInterrupt.
type Bus struct {
	mu        sync.RWMutex
	mailboxes map[ManagerID]chan *Message
	depth     int
	log       *logger.Logger
}

// NewBus creates a Bus with the given per-mailbox depth (DefaultMailboxDepth
// if depth <= 0).
func NewBus(depth int, log *logger.Logger) *Bus {
	if depth <= 0 {
		depth = DefaultMailboxDepth
	}
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	return &Bus{
		mailboxes: make(map[ManagerID]chan *Message),
		depth:     depth,
		log:       log.WithComponent("fwkmsg"),
	}
}

// RegisterMailbox creates the bounded channel backing a manager's
// mailbox. Calling it again for an id that already has a mailbox keeps
// the existing channel (and anything already queued on it), so a
// framework that pre-registers every mailbox and a task kernel that
// registers on start-up share one channel per manager.
func (b *Bus) RegisterMailbox(id ManagerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mailboxes[id]; ok {
		return
	}
	b.mailboxes[id] = make(chan *Message, b.depth)
}

// mailboxFor returns the channel for id, or nil if unregistered.
func (b *Bus) mailboxFor(id ManagerID) chan *Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mailboxes[id]
}

// Put enqueues msg for manager id. It never blocks: if the mailbox is
// full or unregistered, it returns an error immediately rather than
// dropping the message silently or waiting for space.
//
// If msg.Multicore.IsMulticoreMessage is set, the message is
// additionally routed to the multicore bridge's mailbox (once only when
// id is already the bridge). If msg.Scope == ScopeRemote, it is routed
// ONLY to the bridge - the local receiver named by id is skipped
// entirely.
func (b *Bus) Put(id ManagerID, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("fwkmsg: nil message")
	}
	if msg.Scope != ScopeRemote {
		if err := b.enqueue(id, msg); err != nil {
			return err
		}
	}
	if (msg.Multicore.IsMulticoreMessage && id != TaskMulticore) || msg.Scope == ScopeRemote {
		if err := b.enqueue(TaskMulticore, msg); err != nil {
			return err
		}
	}
	return nil
}

// PutFromInterrupt is the interrupt-context equivalent of Put. It
// reports whether the caller's ISR-equivalent wrapper should yield to
// a higher-priority unblocked task on exit - modeled here as a hint
// only, since Go has no cooperative-scheduling primitive matching
// portYIELD_FROM_ISR.
func (b *Bus) PutFromInterrupt(id ManagerID, msg *Message) (yield bool, err error) {
	if err := b.Put(id, msg); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Bus) enqueue(id ManagerID, msg *Message) error {
	mb := b.mailboxFor(id)
	if mb == nil {
		return fmt.Errorf("fwkmsg: mailbox %s not registered", id)
	}
	select {
	case mb <- msg:
		return nil
	default:
		b.log.Error("mailbox full, put rejected",
			logger.String("manager", id.String()),
			logger.String("msg", NameOf(msg.ID)))
		return fmt.Errorf("fwkmsg: mailbox %s full", id)
	}
}

// Get blocks until a message is available for manager id and returns
// it. It has no timeout, matching the firmware's portMAX_DELAY receive.
// Get panics if id was never registered, since that is a programming
// error in task start-up, not a runtime condition callers should
// handle per-call.
func (b *Bus) Get(id ManagerID) *Message {
	mb := b.mailboxFor(id)
	if mb == nil {
		panic(fmt.Sprintf("fwkmsg: Get on unregistered mailbox %s", id))
	}
	return <-mb
}

// Chan exposes the raw channel for a manager's mailbox so the task
// kernel's receive loop can select on it alongside shutdown signaling.
// It returns nil if id is unregistered.
func (b *Bus) Chan(id ManagerID) <-chan *Message {
	return b.mailboxFor(id)
}

// Registered reports whether a mailbox exists for id.
func (b *Bus) Registered(id ManagerID) bool {
	return b.mailboxFor(id) != nil
}
