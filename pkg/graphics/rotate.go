package graphics

import (
	"fmt"

	"github.com/dbehnke/dmr-nexus/pkg/fwkmsg"
)

// RotateSide names which surface a single rotate operation applies to.
type RotateSide int

const (
	RotateNone RotateSide = iota
	RotateSource
	RotateDest
)

// Plan is the result of reconciling a capture's declared rotation
// against a requester's desired rotation: which surfaces need their
// axes swapped, and which single side (if any) carries the rotate op.
type Plan struct {
	Src        Surface
	Dst        Surface
	RotateSide RotateSide
	Rotate     fwkmsg.Rotation
}

// ErrIllPosed is returned when both sides of a request want a nonzero
// rotation after the 90/270 cancellation has been applied - the
// firmware logs and abandons the request in that case, leaving the
// slot filled for the requester to retry.
var ErrIllPosed = fmt.Errorf("graphics: request has rotation on both source and destination")

// PlanTransform implements the camera manager's rotation/flip
// algorithm. The 90->270 cancellation is intentionally one-directional
// (270->90 is NOT cancelled) per the original source; see SPEC_FULL.md §9.
func PlanTransform(src, dst Surface, srcRot, dstRot fwkmsg.Rotation) (Plan, error) {
	if srcRot == fwkmsg.Rotate90 && dstRot == fwkmsg.Rotate270 {
		srcRot, dstRot = fwkmsg.Rotate0, fwkmsg.Rotate0
	}

	if srcRot != fwkmsg.Rotate0 && dstRot != fwkmsg.Rotate0 {
		return Plan{}, ErrIllPosed
	}

	plan := Plan{Src: src, Dst: dst}

	switch {
	case srcRot != fwkmsg.Rotate0:
		if isQuarterTurn(srcRot) {
			plan.Src = swapAxes(plan.Src)
		}
		plan.RotateSide = RotateSource
		plan.Rotate = srcRot
	case dstRot != fwkmsg.Rotate0:
		if isQuarterTurn(dstRot) {
			plan.Dst = swapAxes(plan.Dst)
		}
		plan.RotateSide = RotateDest
		plan.Rotate = dstRot
	default:
		plan.RotateSide = RotateNone
		plan.Rotate = fwkmsg.Rotate0
	}

	return plan, nil
}
