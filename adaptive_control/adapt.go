package control

import "gonum.org/v1/gonum/mat"

// AdaptiveEstimator integrates the Lyapunov-gradient parameter update. The
// dead-zone freezes adaptation when the sliding variable is small, so sensor
// noise cannot drive the estimate once tracking is tight; the positivity
// projection keeps mass-like and friction-like components physical.
//
// Integration is an explicit Euler step with the projection applied after
// the step. That is first-order only and the projection is not enforced
// during the step itself; a Heun-style corrector was considered upstream and
// never adopted, so the one-step behavior here is kept as the reference.
type AdaptiveEstimator struct {
	params   *ParamSet
	deadband float64
}

func NewAdaptiveEstimator(ps *ParamSet, deadband float64) *AdaptiveEstimator {
	return &AdaptiveEstimator{params: ps, deadband: deadband}
}

// SetDeadband applies a reloaded dead-zone threshold at activation.
func (ae *AdaptiveEstimator) SetDeadband(deadband float64) {
	ae.deadband = deadband
}

// Step advances every parameter group by -dt * Gamma * Y^T * s and projects
// the constrained components, provided ||s|| exceeds the dead-zone. Returns
// whether an update was applied.
func (ae *AdaptiveEstimator) Step(cs *CycleState, dt float64) bool {
	if mat.Norm(cs.S, 2) <= ae.deadband {
		return false
	}

	for _, g := range ae.params.Groups() {
		y := g.Regressor(cs)

		yts := mat.NewVecDense(g.Value.Len(), nil)
		yts.MulVec(y.T(), cs.S)

		dp := mat.NewVecDense(g.Value.Len(), nil)
		dp.MulVec(g.Gamma, yts)

		g.Value.AddScaledVec(g.Value, -dt, dp)
		g.Project()
	}
	return true
}
