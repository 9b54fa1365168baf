package control

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func zeroCycleState() *CycleState {
	return &CycleState{
		Q:        mat.NewVecDense(3, nil),
		DQ:       mat.NewVecDense(3, nil),
		VContact: mat.NewVecDense(3, nil),
		DQr:      mat.NewVecDense(3, nil),
		DDQr:     mat.NewVecDense(3, nil),
		S:        mat.NewVecDense(3, nil),
		F:        mat.NewVecDense(3, nil),
	}
}

func TestRegressorDimensions(t *testing.T) {
	cs := zeroCycleState()
	tests := []struct {
		name string
		fn   RegressorFunc
		cols int
	}{
		{"inertial", InertialRegressor, 4},
		{"moment arm", MomentArmRegressor, 2},
		{"viscous", ViscousRegressor, 4},
		{"coulomb", CoulombRegressor, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, c := tt.fn(cs).Dims()
			assert.Equal(t, 3, r)
			assert.Equal(t, tt.cols, c)
		})
	}
}

func TestInertialRegressorAtZeroHeading(t *testing.T) {
	cs := zeroCycleState()
	cs.DDQr.SetVec(0, 1) // unit reference acceleration in x

	y := InertialRegressor(cs)

	// At theta=0 a unit x acceleration loads only the mass column in the x
	// row and the mass-offset coupling in the torque row.
	want := mat.NewDense(3, 4, []float64{
		1, 0, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 1,
	})
	assert.True(t, mat.EqualApprox(y, want, 1e-12), "got %v", mat.Formatted(y))
}

func TestInertialRegressorCoriolisTerms(t *testing.T) {
	cs := zeroCycleState()
	cs.DQ.SetVec(2, 2)  // theta_dot
	cs.DQr.SetVec(2, 3) // theta_dot_r

	y := InertialRegressor(cs)

	// At theta=0: cos=1, sin=0, so the cross terms land on the
	// mass-offset columns of the linear rows.
	require.InDelta(t, 6.0, y.At(0, 2), 1e-12)
	require.InDelta(t, 0.0, y.At(0, 3), 1e-12)
	require.InDelta(t, 0.0, y.At(1, 2), 1e-12)
	require.InDelta(t, 6.0, y.At(1, 3), 1e-12)
}

func TestMomentArmRegressor(t *testing.T) {
	cs := zeroCycleState()
	cs.F.SetVec(1, 10)

	y := MomentArmRegressor(cs)

	// Only the torque row is loaded: at theta=0, Fy=10 couples as
	// (-Fy, 0).
	for j := 0; j < 2; j++ {
		assert.Zero(t, y.At(0, j))
		assert.Zero(t, y.At(1, j))
	}
	require.InDelta(t, -10.0, y.At(2, 0), 1e-12)
	require.InDelta(t, 0.0, y.At(2, 1), 1e-12)
}

func TestViscousRegressor(t *testing.T) {
	cs := zeroCycleState()
	cs.DQr.SetVec(0, 2)
	cs.DQr.SetVec(2, 1)
	cs.Q.SetVec(2, math.Pi/2)

	y := ViscousRegressor(cs)

	// theta = pi/2: sin=1, cos=0.
	want := mat.NewDense(3, 4, []float64{
		2, 1, 0, 0,
		0, 0, 1, 0,
		0, 2, -0, 1,
	})
	assert.True(t, mat.EqualApprox(y, want, 1e-12), "got %v", mat.Formatted(y))
}

func TestCoulombRegressorZeroVelocity(t *testing.T) {
	cs := zeroCycleState()

	y := CoulombRegressor(cs)

	// Zero contact velocity must produce an all-zero matrix, never NaN.
	r, c := y.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.False(t, math.IsNaN(y.At(i, j)))
			assert.Zero(t, y.At(i, j))
		}
	}
}

func TestCoulombRegressorSaturatedSign(t *testing.T) {
	cs := zeroCycleState()
	cs.VContact.SetVec(0, 3.0)
	cs.VContact.SetVec(1, -2.0)

	y := CoulombRegressor(cs)

	// Well away from zero the epsilon-guarded sign saturates near +/-1.
	require.InDelta(t, 1.0, y.At(0, 0), 1e-4)
	require.InDelta(t, -1.0, y.At(1, 0), 1e-4)
}
