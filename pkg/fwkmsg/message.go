package fwkmsg

// Scope controls where a message should be delivered in a multicore build.
type Scope int

const (
	ScopeLocal Scope = iota
	ScopeRemote
	ScopeDualCore
)

// MulticoreFlags carries the bookkeeping the bridge needs to decide
// whether a message should additionally (or exclusively) be routed to
// the peer core, and to prevent a re-bridged message from bouncing
// back out once it has been re-injected locally.
type MulticoreFlags struct {
	IsMulticoreMessage  bool
	WasMulticoreMessage bool
	RemoteTask          ManagerID
}

// Rotation is one of the four fixed rotation angles a frame or surface
// may declare.
type Rotation int

const (
	Rotate0 Rotation = iota
	Rotate90
	Rotate180
	Rotate270
)

// PixelFormat tags the pixel layout of a buffer. The concrete set of
// formats is a driver concern; the framework only compares tags for
// equality when matching capture output against a requester's ask.
type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	FormatUYVY
	FormatYUYV
	FormatRGB565
	FormatRGB888
	FormatNV12
	FormatGray8
)

// Rect is an active rectangle within a surface, in source coordinates.
type Rect struct {
	Left, Top, Right, Bottom int
}

// FrameDescriptor describes a 2D pixel buffer: its geometry, its
// active rectangle, the transform the requester wants applied, and
// the data it wraps. DevID identifies the requesting/producing device
// within its manager's registry.
type FrameDescriptor struct {
	DevID        int
	Width        int
	Height       int
	Pitch        int
	Active       Rect
	Rotate       Rotation
	FlipH        bool
	FlipV        bool
	ByteSwap     bool
	SrcFormat    PixelFormat
	DstFormat    PixelFormat
	Data         []byte
	OwnerFrees   bool
}

// BytesPerPixel returns the stride multiplier for a pixel format.
func BytesPerPixel(f PixelFormat) int {
	switch f {
	case FormatUYVY, FormatYUYV, FormatRGB565:
		return 2
	case FormatRGB888:
		return 3
	case FormatNV12:
		return 1 // luma plane; chroma handled as a separate plane by the driver
	case FormatGray8:
		return 1
	default:
		return 1
	}
}

// Valid reports whether the frame descriptor satisfies the geometry
// invariants: 0 <= left <= right < width (and the vertical analogue),
// and pitch wide enough for one row in the source format.
func (f *FrameDescriptor) Valid() bool {
	if f == nil {
		return false
	}
	if !(0 <= f.Active.Left && f.Active.Left <= f.Active.Right && f.Active.Right < f.Width) {
		return false
	}
	if !(0 <= f.Active.Top && f.Active.Top <= f.Active.Bottom && f.Active.Bottom < f.Height) {
		return false
	}
	return f.Pitch >= f.Width*BytesPerPixel(f.SrcFormat)
}

// OverlayRequest names a UI surface the camera manager should compose
// onto outgoing frames, as posted by the output manager.
type OverlayRequest struct {
	Surface *FrameDescriptor
	Show    bool
}

// InputDescriptor is the payload of an input_recv / inputNotify message:
// raw bytes fanned out to one or more managers.
type InputDescriptor struct {
	ReceiverMask uint32 // bit i set => deliver to ManagerID(i)
	Data         []byte
	Copy         bool
}

// FrameworkRequest is a self-describing framework query carrying its
// own response callback, used by InputFrameworkGetComponents and
// FrameworkGetManagerInfo.
type FrameworkRequest struct {
	Respond func(component TaskComponent, isFinal bool)
}

// TaskComponent is one enumerated device belonging to a manager,
// returned in response to a framework query.
type TaskComponent struct {
	ManagerID  ManagerID
	DeviceID   int
	DeviceName string
}

// FrameKind indexes an algorithm device's declared frame needs (RGB,
// IR, depth, ...). Defined here rather than in pkg/devices so that
// both the message substrate and the capability interfaces can share
// one type without an import cycle.
type FrameKind int

// AudioDumpData carries both the raw and the AFE-cleaned audio block
// an AudioDump message reports, kept as two slices rather than one
// concatenated buffer so output handlers never have to re-split them.
type AudioDumpData struct {
	Raw     []byte
	Cleaned []byte
}

// VoiceLanguage is a bitmask of ASR languages, carried in ASR result
// messages. Defined here rather than in pkg/devices for the same
// import-cycle reason as FrameKind.
type VoiceLanguage int

// Payload is the union of data a Message may carry; which field is
// active is determined entirely by the envelope's ID. FreeAfterConsumed
// is the payload's own ownership flag, distinct from the envelope's
// OwnerFrees - the firmware source frees payload.data before freeing
// the envelope itself, and this port preserves that two-step discipline
// as two distinct flags even though Go's GC makes neither one a literal
// free() call.
type Payload struct {
	DevID             int
	Status            int
	Kind              FrameKind
	Language          VoiceLanguage
	Frame             *FrameDescriptor
	Overlay           *OverlayRequest
	Input             *InputDescriptor
	Framework         *FrameworkRequest
	Dump              *AudioDumpData
	Data              []byte
	FreeAfterConsumed bool
}

// Message is the discriminated envelope exchanged between managers.
type Message struct {
	ID         ID
	OwnerFrees bool
	Scope      Scope
	Multicore  MulticoreFlags
	Payload    Payload
}
