package control

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// signEps keeps the Coulomb sign computation finite at near-zero velocity.
const signEps = 1e-4

// CycleState is the per-cycle snapshot every regressor is a pure function
// of. The Runner fills it once per tick; nothing in this package mutates it.
type CycleState struct {
	Q        *mat.VecDense // filtered pose (x, y, theta)
	DQ       *mat.VecDense // filtered velocity
	VContact *mat.VecDense // contact-point velocity
	DQr      *mat.VecDense // reference velocity dq_des - L*q_err
	DDQr     *mat.VecDense // reference acceleration ddq_des - L*dq_err
	S        *mat.VecDense // sliding variable
	F        *mat.VecDense // commanded generalized force, world frame
}

// RegressorFunc maps the cycle snapshot to a 3xN matrix Y such that
// Y * param approximates that group's generalized-force contribution.
type RegressorFunc func(cs *CycleState) *mat.Dense

// InertialRegressor relates [m, J, m*rpx, m*rpy] to the force needed for
// the reference acceleration, including the Coriolis-like theta_dot *
// theta_dot_r cross terms projected through the current heading.
func InertialRegressor(cs *CycleState) *mat.Dense {
	th := cs.Q.AtVec(2)
	dth := cs.DQ.AtVec(2)
	dthr := cs.DQr.AtVec(2)
	ddxr, ddyr, ddthr := cs.DDQr.AtVec(0), cs.DDQr.AtVec(1), cs.DDQr.AtVec(2)
	c, s := math.Cos(th), math.Sin(th)

	return mat.NewDense(3, 4, []float64{
		ddxr, 0, -s*ddthr + dth*dthr*c, c*ddthr + dth*dthr*s,
		ddyr, 0, -c*ddthr - dth*dthr*s, -s*ddthr + dth*dthr*c,
		0, ddthr, -s*ddxr - c*ddyr, c*ddxr - s*ddyr,
	})
}

// MomentArmRegressor relates the unknown 2D moment-arm offset to the torque
// produced by the commanded force resolved through the current heading.
func MomentArmRegressor(cs *CycleState) *mat.Dense {
	th := cs.Q.AtVec(2)
	fx, fy := cs.F.AtVec(0), cs.F.AtVec(1)
	c, s := math.Cos(th), math.Sin(th)

	return mat.NewDense(3, 2, []float64{
		0, 0,
		0, 0,
		-fy*c - fx*s, -fy*s + fx*c,
	})
}

// ViscousRegressor relates drag-like coefficients to forces linear in the
// reference velocity.
func ViscousRegressor(cs *CycleState) *mat.Dense {
	th := cs.Q.AtVec(2)
	vx, vy, w := cs.DQr.AtVec(0), cs.DQr.AtVec(1), cs.DQr.AtVec(2)
	c, s := math.Cos(th), math.Sin(th)

	return mat.NewDense(3, 4, []float64{
		vx, w * s, -w * c, 0,
		vy, w * c, w * s, 0,
		0, vx*s + vy*c, vy*s - vx*c, w,
	})
}

// CoulombRegressor relates dry-friction coefficients to the sign of the
// contact-point velocity, taken component-wise with an epsilon-guarded
// denominator so near-zero velocities never divide by zero.
func CoulombRegressor(cs *CycleState) *mat.Dense {
	th := cs.Q.AtVec(2)
	c, s := math.Cos(th), math.Sin(th)

	sgn := func(v float64) float64 { return v / (math.Abs(v) + signEps) }
	vx := sgn(cs.VContact.AtVec(0))
	vy := sgn(cs.VContact.AtVec(1))
	w := sgn(cs.VContact.AtVec(2))

	return mat.NewDense(3, 4, []float64{
		vx, 0, 0, 0,
		vy, 0, 0, 0,
		0, vx*s + vy*c, vy*s - vx*c, w,
	})
}
