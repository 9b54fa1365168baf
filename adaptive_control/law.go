package control

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ControlLaw computes the tracking error, sliding variable, and commanded
// force for the current cycle. It holds only the gain matrices; everything
// else flows through per-cycle arguments.
type ControlLaw struct {
	L  *mat.DiagDense
	Kd *mat.DiagDense
}

// NewControlLaw builds the diagonal gain matrices from the activation
// config snapshot.
func NewControlLaw(cfg GainConfig) *ControlLaw {
	return &ControlLaw{
		L:  mat.NewDiagDense(3, []float64{cfg.LLin, cfg.LLin, cfg.LAng}),
		Kd: mat.NewDiagDense(3, []float64{cfg.KdLin, cfg.KdLin, cfg.KdAng}),
	}
}

// TrackingError returns q - q_des with the orientation component folded to
// the shortest angular path.
func (cl *ControlLaw) TrackingError(q, qDes *mat.VecDense) *mat.VecDense {
	qErr := mat.NewVecDense(3, nil)
	qErr.SubVec(q, qDes)
	if th := qErr.AtVec(2); math.Abs(th) > math.Pi {
		if th > 0 {
			qErr.SetVec(2, th-2*math.Pi)
		} else {
			qErr.SetVec(2, th+2*math.Pi)
		}
	}
	return qErr
}

// SlidingTerms computes the sliding variable and reference rates:
//
//	s     = dq_err + L*q_err
//	dq_r  = dq_des - L*q_err
//	ddq_r = ddq_des - L*dq_err
func (cl *ControlLaw) SlidingTerms(qErr, dq, dqDes, ddqDes *mat.VecDense) (s, dqErr, dqr, ddqr *mat.VecDense) {
	dqErr = mat.NewVecDense(3, nil)
	dqErr.SubVec(dq, dqDes)

	lq := mat.NewVecDense(3, nil)
	lq.MulVec(cl.L, qErr)
	ldq := mat.NewVecDense(3, nil)
	ldq.MulVec(cl.L, dqErr)

	s = mat.NewVecDense(3, nil)
	s.AddVec(dqErr, lq)

	dqr = mat.NewVecDense(3, nil)
	dqr.SubVec(dqDes, lq)

	ddqr = mat.NewVecDense(3, nil)
	ddqr.SubVec(ddqDes, ldq)
	return s, dqErr, dqr, ddqr
}

// Force evaluates the feedback-linearization-plus-damping law
// F = sum_i Y_i*param_i - Kd*s over the groups that contribute to the
// force. The moment-arm group is excluded here; it acts through the
// actuator correction matrix instead.
func (cl *ControlLaw) Force(ps *ParamSet, cs *CycleState) *mat.VecDense {
	f := mat.NewVecDense(3, nil)
	term := mat.NewVecDense(3, nil)
	for _, g := range ps.Groups() {
		if !g.InForce {
			continue
		}
		term.MulVec(g.Regressor(cs), g.Value)
		f.AddVec(f, term)
	}
	term.MulVec(cl.Kd, cs.S)
	f.SubVec(f, term)
	return f
}

// MomentArmCorrection builds the 3x3 map from world-frame force to actuator
// command. The linear rows are identity; the angular row cancels the torque
// that the estimated moment arm, rotated into the body frame by theta,
// induces from the linear force components. A zero arm estimate yields the
// identity.
func MomentArmCorrection(arm *mat.VecDense, th float64) *mat.Dense {
	rhx, rhy := arm.AtVec(0), arm.AtVec(1)
	c, s := math.Cos(th), math.Sin(th)

	rhxN := rhx*c + rhy*s
	rhyN := -rhx*s + rhy*c

	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		rhyN, -rhxN, 1,
	})
}

// ActuatorCommand maps the commanded force through the moment-arm
// correction: tau = Mcorr * F.
func ActuatorCommand(f *mat.VecDense, ps *ParamSet, th float64) *mat.VecDense {
	tau := mat.NewVecDense(3, nil)
	tau.MulVec(MomentArmCorrection(ps.MomentArm.Value, th), f)
	return tau
}
