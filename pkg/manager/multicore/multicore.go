// Package multicore implements the multicore bridge: a single task
// hosting one peer-link device, serializing outbound messages tagged
// for the remote core and decoding inbound frames back into local
// mailbox traffic.
package multicore

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/dbehnke/dmr-nexus/pkg/devices"
	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
	"github.com/dbehnke/dmr-nexus/pkg/fwktask"
	"github.com/dbehnke/dmr-nexus/pkg/logger"
)

// headerSize is the wire size of a serialized message header: id(4) +
// devid(4) + scope(1) + remoteTask(1) + payloadSize(4).
const headerSize = 14

type wireHeader struct {
	ID          fwkmsg.ID
	DevID       int32
	Scope       fwkmsg.Scope
	RemoteTask  fwkmsg.ManagerID
	PayloadSize uint32
}

func encodeHeader(h wireHeader) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.ID))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.DevID))
	buf[8] = byte(h.Scope)
	buf[9] = byte(h.RemoteTask)
	binary.LittleEndian.PutUint32(buf[10:14], h.PayloadSize)
	return buf
}

func decodeHeader(buf []byte) (wireHeader, error) {
	if len(buf) < headerSize {
		return wireHeader{}, fmt.Errorf("multicore: short header (%d bytes, want at least %d)", len(buf), headerSize)
	}
	return wireHeader{
		ID:          fwkmsg.ID(binary.LittleEndian.Uint32(buf[0:4])),
		DevID:       int32(binary.LittleEndian.Uint32(buf[4:8])),
		Scope:       fwkmsg.Scope(buf[8]),
		RemoteTask:  fwkmsg.ManagerID(buf[9]),
		PayloadSize: binary.LittleEndian.Uint32(buf[10:14]),
	}, nil
}

// dataBearing are the message kinds whose payload is raw bytes the
// bridge must copy across as a contiguous header+payload buffer.
// Everything else is size-known: its meaning is fully captured by the
// header fields, so only the header crosses the wire.
func dataBearing(id fwkmsg.ID) bool {
	switch id {
	case fwkmsg.InputReceive, fwkmsg.VAlgoResultUpdate, fwkmsg.VAlgoASRResultUpdate, fwkmsg.InputNotify:
		return true
	default:
		return false
	}
}

// Manager hosts the single multicore peer-link device.
type Manager struct {
	bus    *fwkmsg.Bus
	kernel *fwktask.Kernel
	log    *logger.Logger
	dev    devices.MulticoreDevice
}

// New creates a Manager around dev.
func New(bus *fwkmsg.Bus, kernel *fwktask.Kernel, dev devices.MulticoreDevice, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	return &Manager{bus: bus, kernel: kernel, dev: dev, log: log.WithComponent("multicore")}
}

// Start initializes the device, installs the inbound receive handler,
// and spawns the manager's outbound receive loop.
func (m *Manager) Start() error {
	if err := m.dev.Init(); err != nil {
		return fmt.Errorf("multicore: init: %w", err)
	}
	m.dev.SetReceiveHandler(m.onReceive)
	if err := m.dev.Start(); err != nil {
		return fmt.Errorf("multicore: start: %w", err)
	}
	return m.kernel.StartTask(fwktask.Spec{
		ManagerID: fwkmsg.TaskMulticore,
		Name:      "multicore",
		OnMessage: m.onMessage,
	})
}

// onMessage runs on the bridge task's own goroutine for every message
// the bus fans out here (Scope == ScopeRemote or Multicore.IsMulticoreMessage).
func (m *Manager) onMessage(msg *fwkmsg.Message, _ any) {
	header := wireHeader{
		ID:         msg.ID,
		DevID:      int32(msg.Payload.DevID),
		Scope:      fwkmsg.ScopeLocal,
		RemoteTask: msg.Multicore.RemoteTask,
	}

	corrID := uuid.New()
	var frame []byte
	if dataBearing(msg.ID) {
		payload := msg.Payload.Data
		header.PayloadSize = uint32(len(payload))
		frame = make([]byte, headerSize+len(payload))
		copy(frame, encodeHeader(header))
		copy(frame[headerSize:], payload)
	} else {
		frame = encodeHeader(header)
	}

	if err := m.dev.Send(frame); err != nil {
		m.log.Error("sending multicore frame", logger.String("correlation_id", corrID.String()), logger.String("msg", fwkmsg.NameOf(msg.ID)), logger.Error(err))
		return
	}
	m.log.Debug("sent multicore frame",
		logger.String("correlation_id", corrID.String()),
		logger.String("msg", fwkmsg.NameOf(msg.ID)),
		logger.String("remote_task", header.RemoteTask.String()))
}

// onReceive is invoked from the device's own reader goroutine - the
// host equivalent of the firmware's MsgReceive interrupt - whenever a
// frame arrives from the peer core.
func (m *Manager) onReceive(data []byte) {
	header, err := decodeHeader(data)
	if err != nil {
		m.log.Error("decoding multicore frame", logger.Error(err))
		return
	}
	if !m.bus.Registered(header.RemoteTask) {
		m.log.Error("dropping frame for unregistered target", logger.String("target", header.RemoteTask.String()))
		return
	}

	msg := &fwkmsg.Message{
		ID:    header.ID,
		Scope: fwkmsg.ScopeLocal,
		Multicore: fwkmsg.MulticoreFlags{
			IsMulticoreMessage:  false,
			WasMulticoreMessage: true,
		},
		Payload: fwkmsg.Payload{DevID: int(header.DevID)},
	}

	if header.PayloadSize > 0 {
		want := headerSize + int(header.PayloadSize)
		if len(data) < want {
			m.log.Error("multicore frame payload size mismatch",
				logger.Int("want", want), logger.Int("got", len(data)))
			return
		}
		raw := append([]byte(nil), data[headerSize:want]...)
		switch header.ID {
		case fwkmsg.InputReceive:
			msg.Payload.Input = &fwkmsg.InputDescriptor{Data: raw}
		case fwkmsg.VAlgoResultUpdate, fwkmsg.VAlgoASRResultUpdate, fwkmsg.InputNotify:
			msg.Payload.Data = raw
		default:
			m.log.Error("unexpected data-bearing id decoding multicore frame", logger.String("msg", fwkmsg.NameOf(header.ID)))
			return
		}
	}

	if _, err := m.bus.PutFromInterrupt(header.RemoteTask, msg); err != nil {
		m.log.Error("posting decoded multicore frame", logger.Error(err))
	}
}
