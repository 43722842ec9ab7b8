// Package graphics implements the camera manager's rotate/flip/scale
// abstraction: the surface geometry transform is plain domain logic;
// rotation and flip are done by remapping pixel indices, and
// golang.org/x/image/draw supplies the nearest-neighbour scaling and
// rectangle copies. Surfaces are treated as 8-bit gray; pixel formats
// are not converted.
package graphics

import (
	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
)

// Surface is a 2D pixel buffer description, matching the glossary's
// {buffer, width, height, pitch, format, active_rect, byte_swap}.
type Surface struct {
	Width, Height int
	Pitch         int
	Active        fwkmsg.Rect
	Format        fwkmsg.PixelFormat
	ByteSwap      bool
	Data          []byte
}

// FromFrame builds a Surface from a frame descriptor's source-side
// geometry.
func FromFrame(f *fwkmsg.FrameDescriptor) Surface {
	return Surface{
		Width:    f.Width,
		Height:   f.Height,
		Pitch:    f.Pitch,
		Active:   f.Active,
		Format:   f.SrcFormat,
		ByteSwap: f.ByteSwap,
		Data:     f.Data,
	}
}

// swapAxes exchanges width/height and the active rectangle's axes, as
// required when a surface is declared rotated by 90 or 270 degrees.
func swapAxes(s Surface) Surface {
	s.Width, s.Height = s.Height, s.Width
	s.Active = fwkmsg.Rect{
		Left:   s.Active.Top,
		Top:    s.Active.Left,
		Right:  s.Active.Bottom,
		Bottom: s.Active.Right,
	}
	return s
}

func isQuarterTurn(r fwkmsg.Rotation) bool {
	return r == fwkmsg.Rotate90 || r == fwkmsg.Rotate270
}
