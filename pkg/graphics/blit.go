package graphics

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
)

// FlipMode names the flip applied during a blit, independent of rotation.
type FlipMode int

const (
	FlipNone FlipMode = iota
	FlipHorizontal
	FlipVertical
	FlipBoth
)

// Blit copies plan.Src's active rectangle into plan.Dst, applying the
// planned rotate/flip and scaling to the destination's active
// rectangle size. Both surfaces are treated as 8-bit-per-channel gray
// buffers for the purpose of the geometric transform - concrete pixel
// formats are a driver concern; this models the
// transform every format-specific driver would apply identically.
func Blit(plan Plan, flip FlipMode) error {
	return blit(plan.Src, plan.Dst, plan.Rotate, plan.RotateSide, flip)
}

// Compose behaves like Blit but first composes overlay onto src using
// straight alpha blending, matching the camera manager's "use compose
// instead of blit when an overlay surface is registered" rule.
func Compose(plan Plan, overlay Surface, flip FlipMode) error {
	composed, err := composeOverlay(plan.Src, overlay)
	if err != nil {
		return err
	}
	plan.Src = composed
	return blit(plan.Src, plan.Dst, plan.Rotate, plan.RotateSide, flip)
}

func surfaceImage(s Surface) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, s.Width, s.Height))
	bpp := fwkmsg.BytesPerPixel(s.Format)
	for y := 0; y < s.Height; y++ {
		rowStart := y * s.Pitch
		for x := 0; x < s.Width; x++ {
			off := rowStart + x*bpp
			var v byte
			if off < len(s.Data) {
				v = s.Data[off]
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func blit(src, dst Surface, rot fwkmsg.Rotation, side RotateSide, flip FlipMode) error {
	if len(src.Data) == 0 {
		return fmt.Errorf("graphics: source surface has no data")
	}
	if len(dst.Data) == 0 {
		return fmt.Errorf("graphics: destination surface has no data")
	}

	// A quarter-turned side carries the post-rotation (swapped) geometry
	// in the plan, while its buffer is laid out in the declared geometry.
	if isQuarterTurn(rot) {
		switch side {
		case RotateSource:
			src = swapAxes(src)
		case RotateDest:
			dst = swapAxes(dst)
		}
	}

	srcImg := cropActive(surfaceImage(src), src.Active)

	var rotated image.Image = srcImg
	if side != RotateNone {
		rotated = rotateDiscrete(srcImg, rot)
	}
	rotated = applyFlip(rotated, flip)

	dstRect := image.Rect(0, 0, dst.Active.Right-dst.Active.Left+1, dst.Active.Bottom-dst.Active.Top+1)
	scaled := image.NewGray(dstRect)
	draw.NearestNeighbor.Scale(scaled, dstRect, rotated, rotated.Bounds(), draw.Src, nil)

	bpp := fwkmsg.BytesPerPixel(dst.Format)
	for y := 0; y < scaled.Bounds().Dy(); y++ {
		destY := dst.Active.Top + y
		rowStart := destY*dst.Pitch + dst.Active.Left*bpp
		for x := 0; x < scaled.Bounds().Dx(); x++ {
			off := rowStart + x*bpp
			if off >= len(dst.Data) {
				continue
			}
			dst.Data[off] = scaled.GrayAt(x, y).Y
		}
	}
	return nil
}

func cropActive(img *image.Gray, r fwkmsg.Rect) *image.Gray {
	sub := img.SubImage(image.Rect(r.Left, r.Top, r.Right+1, r.Bottom+1)).(*image.Gray)
	out := image.NewGray(image.Rect(0, 0, sub.Bounds().Dx(), sub.Bounds().Dy()))
	draw.Draw(out, out.Bounds(), sub, sub.Bounds().Min, draw.Src)
	return out
}

// rotateDiscrete rotates by exactly one of the four fixed angles via
// pixel-index remapping - there is no affine interpolation to do for
// quarter turns.
func rotateDiscrete(img *image.Gray, rot fwkmsg.Rotation) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch rot {
	case fwkmsg.Rotate90:
		out := image.NewGray(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.SetGray(h-1-y, x, img.GrayAt(b.Min.X+x, b.Min.Y+y))
			}
		}
		return out
	case fwkmsg.Rotate180:
		out := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.SetGray(w-1-x, h-1-y, img.GrayAt(b.Min.X+x, b.Min.Y+y))
			}
		}
		return out
	case fwkmsg.Rotate270:
		out := image.NewGray(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.SetGray(y, w-1-x, img.GrayAt(b.Min.X+x, b.Min.Y+y))
			}
		}
		return out
	default:
		return img
	}
}

func applyFlip(img image.Image, flip FlipMode) image.Image {
	if flip == FlipNone {
		return img
	}
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sx, sy := x, y
			if flip == FlipHorizontal || flip == FlipBoth {
				sx = b.Max.X - 1 - (x - b.Min.X)
			}
			if flip == FlipVertical || flip == FlipBoth {
				sy = b.Max.Y - 1 - (y - b.Min.Y)
			}
			r, _, _, _ := img.At(sx, sy).RGBA()
			out.SetGray(x, y, color.Gray{Y: byte(r >> 8)})
		}
	}
	return out
}

func composeOverlay(src, overlay Surface) (Surface, error) {
	if len(overlay.Data) == 0 {
		return src, nil
	}
	srcImg := surfaceImage(src)
	overlayImg := surfaceImage(overlay)
	draw.Draw(srcImg, srcImg.Bounds(), overlayImg, image.Point{}, draw.Over)

	out := src
	out.Data = make([]byte, len(src.Data))
	copy(out.Data, src.Data)
	bpp := fwkmsg.BytesPerPixel(src.Format)
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			off := y*src.Pitch + x*bpp
			if off < len(out.Data) {
				out.Data[off] = srcImg.GrayAt(x, y).Y
			}
		}
	}
	return out, nil
}
