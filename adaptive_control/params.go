package control

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ParamGroup is one physically-distinct partition of the unknown dynamic
// parameters. Each group carries its own adaptation gain, its own regressor,
// and its own set of components constrained to stay non-negative.
type ParamGroup struct {
	Name      string
	Value     *mat.VecDense
	Gamma     *mat.DiagDense // adaptation gain, gamma * diag(mags)
	Positive  []int          // indices projected to >= 0 after every step
	InForce   bool           // whether Y*Value enters the commanded force
	Regressor RegressorFunc
}

// Project clamps the positivity-constrained components to zero from below.
func (g *ParamGroup) Project() {
	for _, i := range g.Positive {
		if g.Value.AtVec(i) < 0 {
			g.Value.SetVec(i, 0)
		}
	}
}

func (g *ParamGroup) setGamma(gamma float64, mags []float64) {
	scaled := make([]float64, len(mags))
	for i, m := range mags {
		scaled[i] = gamma * m
	}
	g.Gamma = mat.NewDiagDense(len(scaled), scaled)
}

// ParamSet is the full partitioned parameter estimate: inertial terms,
// moment-arm offset, viscous coefficients, Coulomb coefficients.
type ParamSet struct {
	Inertial  *ParamGroup // [m, J, m*rpx, m*rpy]
	MomentArm *ParamGroup // [rx, ry], enters the force only via the correction matrix
	Viscous   *ParamGroup
	Coulomb   *ParamGroup
}

// NewParamSet builds the reference four-group partition with zeroed values
// and applies the configured gains and inertial seed.
func NewParamSet(cfg GainConfig) (*ParamSet, error) {
	ps := &ParamSet{
		Inertial: &ParamGroup{
			Name:      "o",
			Value:     mat.NewVecDense(4, nil),
			Positive:  []int{0, 1},
			InForce:   true,
			Regressor: InertialRegressor,
		},
		MomentArm: &ParamGroup{
			Name:      "g",
			Value:     mat.NewVecDense(2, nil),
			Positive:  nil,
			InForce:   false,
			Regressor: MomentArmRegressor,
		},
		Viscous: &ParamGroup{
			Name:      "d",
			Value:     mat.NewVecDense(4, nil),
			Positive:  []int{0, 3},
			InForce:   true,
			Regressor: ViscousRegressor,
		},
		Coulomb: &ParamGroup{
			Name:      "c",
			Value:     mat.NewVecDense(4, nil),
			Positive:  []int{0, 3},
			InForce:   true,
			Regressor: CoulombRegressor,
		},
	}
	if err := ps.Reconfigure(cfg); err != nil {
		return nil, err
	}
	return ps, nil
}

// Reconfigure applies a fresh gain snapshot and re-seeds the mass and
// inertia estimates. All other parameter values are left as they are; the
// estimate is only destroyed by Reset.
func (ps *ParamSet) Reconfigure(cfg GainConfig) error {
	for _, g := range ps.Groups() {
		var mags []float64
		switch g.Name {
		case "o":
			mags = cfg.OMags
		case "g":
			mags = cfg.GMags
		case "d":
			mags = cfg.DMags
		case "c":
			mags = cfg.CMags
		}
		if len(mags) != g.Value.Len() {
			return fmt.Errorf("group %s: expected %d magnitudes, got %d", g.Name, g.Value.Len(), len(mags))
		}
		g.setGamma(cfg.Gamma, mags)
	}

	ps.Inertial.Value.SetVec(0, cfg.MInit)
	ps.Inertial.Value.SetVec(1, cfg.JInit)
	return nil
}

// Reset zeroes every parameter value, the state required when the
// controller deactivates.
func (ps *ParamSet) Reset() {
	for _, g := range ps.Groups() {
		g.Value.Zero()
	}
}

// Groups returns the groups in their canonical publication order.
func (ps *ParamSet) Groups() []*ParamGroup {
	return []*ParamGroup{ps.Inertial, ps.MomentArm, ps.Viscous, ps.Coulomb}
}

// Concat flattens the groups into one vector in canonical order, the shape
// published on the parameter-estimate channel.
func (ps *ParamSet) Concat() []float64 {
	var out []float64
	for _, g := range ps.Groups() {
		for i := 0; i < g.Value.Len(); i++ {
			out = append(out, g.Value.AtVec(i))
		}
	}
	return out
}
