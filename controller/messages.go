package main

import (
	"gonum.org/v1/gonum/mat"

	estimation "adaptive-manip-core/state_estimation"
)

// Frame names of the controller bus, defined in config/can_map.csv.
//
// A pose sample arrives as a POSE_XY / POSE_QUAT pair and is latched when
// the quaternion half lands; a reference update arrives as the
// REF_POS / REF_VEL / REF_ACC triple and is latched on REF_ACC.
const (
	FramePoseXY   = "POSE_XY"
	FramePoseQuat = "POSE_QUAT"
	FrameRefPos   = "REF_POS"
	FrameRefVel   = "REF_VEL"
	FrameRefAcc   = "REF_ACC"
	FrameMode     = "AC_MODE"

	FrameActCmd     = "ACT_CMD"
	FrameStatePose  = "STATE_POSE"
	FrameStateVel   = "STATE_VEL"
	FrameTrackErr   = "TRACK_ERR"
	FrameSlidingVar = "SLIDING_VAR"
	FrameParamO     = "PARAM_O"
	FrameParamG     = "PARAM_G"
	FrameParamD     = "PARAM_D"
	FrameParamC     = "PARAM_C"
)

// PoseMeasurement is one raw mocap sample: world position plus orientation
// quaternion.
type PoseMeasurement struct {
	X, Y           float64
	Qx, Qy, Qz, Qw float64
}

// Vec converts the sample to the (x, y, theta) vector the estimator
// consumes.
func (p PoseMeasurement) Vec() *mat.VecDense {
	th := estimation.QuaternionToYaw(p.Qx, p.Qy, p.Qz, p.Qw)
	return mat.NewVecDense(3, []float64{p.X, p.Y, th})
}

// ReferenceUpdate is one desired-trajectory sample: pose, velocity and
// acceleration triples, stored verbatim with no interpolation.
type ReferenceUpdate struct {
	QDes   [3]float64
	DQDes  [3]float64
	DDQDes [3]float64
}

func (r ReferenceUpdate) Vecs() (qDes, dqDes, ddqDes *mat.VecDense) {
	return mat.NewVecDense(3, r.QDes[:]),
		mat.NewVecDense(3, r.DQDes[:]),
		mat.NewVecDense(3, r.DDQDes[:])
}

func vec3Values(prefix string, v *mat.VecDense) map[string]float64 {
	return map[string]float64{
		prefix + "_x":     v.AtVec(0),
		prefix + "_y":     v.AtVec(1),
		prefix + "_theta": v.AtVec(2),
	}
}

func paramValues(prefix string, v *mat.VecDense) map[string]float64 {
	out := make(map[string]float64, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[prefix+string(rune('0'+i))] = v.AtVec(i)
	}
	return out
}
