package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestStepInsideDeadbandFreezesEstimate(t *testing.T) {
	ps, err := NewParamSet(testGains())
	require.NoError(t, err)
	ae := NewAdaptiveEstimator(ps, 0.03)

	cs := zeroCycleState()
	cs.S = mat.NewVecDense(3, []float64{0.02, 0, 0})
	cs.DDQr.SetVec(0, 1)

	before := ps.Concat()
	assert.False(t, ae.Step(cs, 0.1))
	assert.Equal(t, before, ps.Concat())

	// The threshold itself is still inside the dead-zone.
	cs.S = mat.NewVecDense(3, []float64{0.03, 0, 0})
	assert.False(t, ae.Step(cs, 0.1))
}

func TestStepGradientUpdate(t *testing.T) {
	cfg := testGains()
	ps, err := NewParamSet(cfg)
	require.NoError(t, err)
	ae := NewAdaptiveEstimator(ps, cfg.Deadband)

	// At zero heading with ddq_r = (1, 0, 0) and s = (1, 0, 0), only the
	// mass column of the inertial regressor is excited: Y^T*s = e_0.
	cs := zeroCycleState()
	cs.S = mat.NewVecDense(3, []float64{1, 0, 0})
	cs.DDQr.SetVec(0, 1)

	assert.True(t, ae.Step(cs, 0.1))

	// m <- m_init - dt * gamma * o_mags[0] * 1
	require.InDelta(t, 15.0-0.1*0.05, ps.Inertial.Value.AtVec(0), 1e-12)
	// Everything else had a zero regressor column and stays put.
	assert.Equal(t, 15.0, ps.Inertial.Value.AtVec(1))
	assert.Zero(t, ps.Inertial.Value.AtVec(2))
	assert.True(t, mat.EqualApprox(ps.Viscous.Value, mat.NewVecDense(4, nil), 1e-15))
	assert.True(t, mat.EqualApprox(ps.Coulomb.Value, mat.NewVecDense(4, nil), 1e-15))
}

func TestStepProjectsConstrainedComponents(t *testing.T) {
	cfg := testGains()
	cfg.MInit = 0.001
	cfg.Gamma = 1000
	ps, err := NewParamSet(cfg)
	require.NoError(t, err)
	ae := NewAdaptiveEstimator(ps, cfg.Deadband)

	cs := zeroCycleState()
	cs.S = mat.NewVecDense(3, []float64{1, 0, 0})
	cs.DDQr.SetVec(0, 1)

	assert.True(t, ae.Step(cs, 1.0))

	// The raw Euler step drives the mass far negative; the projection
	// clamps it at zero instead.
	assert.Equal(t, 0.0, ps.Inertial.Value.AtVec(0))
}

func TestMomentArmEstimateMayGoNegative(t *testing.T) {
	cfg := testGains()
	cfg.Gamma = 1000
	ps, err := NewParamSet(cfg)
	require.NoError(t, err)
	ae := NewAdaptiveEstimator(ps, cfg.Deadband)

	// Excite the torque row: s = e_theta, F along -y at zero heading.
	cs := zeroCycleState()
	cs.S = mat.NewVecDense(3, []float64{0, 0, 1})
	cs.F.SetVec(1, -10)

	assert.True(t, ae.Step(cs, 1.0))

	// No positivity constraint on the moment-arm group.
	assert.Less(t, ps.MomentArm.Value.AtVec(0), 0.0)
}

func TestResetThenReconfigureMatchesFreshSet(t *testing.T) {
	cfg := testGains()
	ps, err := NewParamSet(cfg)
	require.NoError(t, err)
	ae := NewAdaptiveEstimator(ps, cfg.Deadband)

	// Drift the estimate away from its seed.
	cs := zeroCycleState()
	cs.S = mat.NewVecDense(3, []float64{1, 0.5, 1})
	cs.DDQr = mat.NewVecDense(3, []float64{1, 1, 1})
	cs.DQr = mat.NewVecDense(3, []float64{0.4, 0, 0.2})
	cs.VContact = mat.NewVecDense(3, []float64{1, -1, 0.5})
	cs.F = mat.NewVecDense(3, []float64{2, -3, 1})
	for i := 0; i < 10; i++ {
		require.True(t, ae.Step(cs, 0.1))
	}

	ps.Reset()
	require.NoError(t, ps.Reconfigure(cfg))

	fresh, err := NewParamSet(cfg)
	require.NoError(t, err)
	assert.Equal(t, fresh.Concat(), ps.Concat())
}

func TestReconfigureKeepsNonSeededValues(t *testing.T) {
	cfg := testGains()
	ps, err := NewParamSet(cfg)
	require.NoError(t, err)

	ps.Inertial.Value.SetVec(2, 0.7)
	ps.Viscous.Value.SetVec(1, -0.2)
	ps.MomentArm.Value.SetVec(0, 0.3)

	cfg.MInit, cfg.JInit = 5, 6
	require.NoError(t, ps.Reconfigure(cfg))

	// Only mass and inertia are re-seeded.
	assert.Equal(t, 5.0, ps.Inertial.Value.AtVec(0))
	assert.Equal(t, 6.0, ps.Inertial.Value.AtVec(1))
	assert.Equal(t, 0.7, ps.Inertial.Value.AtVec(2))
	assert.Equal(t, -0.2, ps.Viscous.Value.AtVec(1))
	assert.Equal(t, 0.3, ps.MomentArm.Value.AtVec(0))
}

func TestReconfigureRejectsBadMagnitudes(t *testing.T) {
	cfg := testGains()
	cfg.DMags = []float64{1, 1}
	_, err := NewParamSet(cfg)
	assert.Error(t, err)
}
