package estimation

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// FilterConfig holds the estimator tuning loaded at activation time.
type FilterConfig struct {
	QFilt     float64    // pose low-pass coefficient in [0,1)
	DQFilt    float64    // velocity low-pass coefficient in [0,1)
	VMax      float64    // per-component velocity clip bound (m/s, rad/s)
	WrapTol   float64    // angular branch-cut tolerance (rad)
	MomentArm [2]float64 // body-frame offset of the contact point (m)
}

// StateEstimator turns raw pose samples into filtered pose and velocity
// estimates. It keeps a two-deep pose history for the second-order backward
// difference and never produces a velocity before that history exists.
type StateEstimator struct {
	cfg FilterConfig

	q        *mat.VecDense // latest filtered pose (x, y, theta)
	qPrev    *mat.VecDense // filtered pose one cycle back
	dq       *mat.VecDense // filtered velocity estimate
	vContact *mat.VecDense // contact-point velocity, world frame
}

// NewStateEstimator starts from an all-zero state, matching a vehicle
// parked at the world origin until the first measurements arrive.
func NewStateEstimator(cfg FilterConfig) *StateEstimator {
	return &StateEstimator{
		cfg:      cfg,
		q:        mat.NewVecDense(3, nil),
		qPrev:    mat.NewVecDense(3, nil),
		dq:       mat.NewVecDense(3, nil),
		vContact: mat.NewVecDense(3, nil),
	}
}

// Reconfigure swaps in a fresh tuning snapshot. Filter history is kept: the
// estimator keeps tracking across activation boundaries.
func (e *StateEstimator) Reconfigure(cfg FilterConfig) {
	e.cfg = cfg
}

// Step folds one raw pose sample into the estimate. dt is the measured wall
// time since the previous step and must be positive; the caller skips the
// very first cycle where no dt exists.
func (e *StateEstimator) Step(raw *mat.VecDense, dt float64) {
	rawX, rawY, rawTh := raw.AtVec(0), raw.AtVec(1), raw.AtVec(2)

	// Pull the raw heading onto the branch of the current filtered heading
	// before it enters the low-pass filter.
	rawTh = UnwrapToward(rawTh, e.q.AtVec(2), e.cfg.WrapTol)

	a := e.cfg.QFilt
	qf := mat.NewVecDense(3, []float64{
		(1-a)*rawX + a*e.q.AtVec(0),
		(1-a)*rawY + a*e.q.AtVec(1),
		(1-a)*rawTh + a*e.q.AtVec(2),
	})

	zNew, zCurr, zPrev := WrapStencil(qf.AtVec(2), e.q.AtVec(2), e.qPrev.AtVec(2), e.cfg.WrapTol)
	qf.SetVec(2, zNew)
	e.q.SetVec(2, zCurr)
	e.qPrev.SetVec(2, zPrev)

	// Second-order backward difference over the continuous stencil.
	ad := e.cfg.DQFilt
	for i := 0; i < 3; i++ {
		dqNew := (3*qf.AtVec(i) - 4*e.q.AtVec(i) + e.qPrev.AtVec(i)) / (2 * dt)
		if dqNew > e.cfg.VMax {
			dqNew = e.cfg.VMax
		} else if dqNew < -e.cfg.VMax {
			dqNew = -e.cfg.VMax
		}
		e.dq.SetVec(i, (1-ad)*dqNew+ad*e.dq.AtVec(i))
	}

	e.qPrev.CopyVec(e.q)
	e.q.CopyVec(qf)

	e.updateContactVelocity()
}

// updateContactVelocity rotates the configured moment arm into the world
// frame and adds the tangential velocity induced by the angular rate.
func (e *StateEstimator) updateContactVelocity() {
	th := e.q.AtVec(2)
	c, s := math.Cos(th), math.Sin(th)
	rix := c*e.cfg.MomentArm[0] + s*e.cfg.MomentArm[1]
	riy := -s*e.cfg.MomentArm[0] + c*e.cfg.MomentArm[1]

	w := e.dq.AtVec(2)
	e.vContact.SetVec(0, e.dq.AtVec(0)-w*riy)
	e.vContact.SetVec(1, e.dq.AtVec(1)+w*rix)
	e.vContact.SetVec(2, w)
}

// Pose returns a copy of the filtered pose (x, y, theta).
func (e *StateEstimator) Pose() *mat.VecDense {
	return mat.VecDenseCopyOf(e.q)
}

// Velocity returns a copy of the filtered velocity estimate.
func (e *StateEstimator) Velocity() *mat.VecDense {
	return mat.VecDenseCopyOf(e.dq)
}

// ContactVelocity returns a copy of the estimated contact-point velocity.
func (e *StateEstimator) ContactVelocity() *mat.VecDense {
	return mat.VecDenseCopyOf(e.vContact)
}
