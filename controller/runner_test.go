package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"
	"gonum.org/v1/gonum/mat"

	control "adaptive-manip-core/adaptive_control"
	estimation "adaptive-manip-core/state_estimation"
	"adaptive-manip-core/utils"
)

// frameRecorder captures transmitted frames in order.
type frameRecorder struct {
	frames []can.Frame
}

func (w *frameRecorder) WriteFrame(_ context.Context, f can.Frame) error {
	w.frames = append(w.frames, f)
	return nil
}

func (w *frameRecorder) Close() error { return nil }

func (w *frameRecorder) last(id uint32) (can.Frame, bool) {
	for i := len(w.frames) - 1; i >= 0; i-- {
		if w.frames[i].ID == id {
			return w.frames[i], true
		}
	}
	return can.Frame{}, false
}

// scriptedReader feeds frames from a channel, blocking like a real socket.
type scriptedReader struct {
	frames chan can.Frame
}

func (r *scriptedReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case f := <-r.frames:
		return f, nil
	}
}

func (r *scriptedReader) Close() error { return nil }

func newTestRunner(t *testing.T) (*Runner, *frameRecorder) {
	t.Helper()

	log, err := utils.NewFileLogger(filepath.Join(t.TempDir(), "test.log"), utils.WARN, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	cmap, err := utils.LoadCANMap("../config/can_map.csv")
	require.NoError(t, err)
	fd, err := cmap.FrameByName(FrameActCmd)
	require.NoError(t, err)

	const configPath = "../config/controller.defaults.json"
	ctrl, err := LoadControllerConfig(configPath)
	require.NoError(t, err)

	params, err := control.NewParamSet(ctrl.Gains)
	require.NoError(t, err)

	rec := &frameRecorder{}
	r := &Runner{
		cfg:    RunnerConfig{ConfigPath: configPath, CmdFrame: FrameActCmd},
		log:    log,
		cmap:   cmap,
		writer: rec,
		fd:     fd,
		ctrl:   ctrl,
		est:    estimation.NewStateEstimator(ctrl.FilterConfig()),
		law:    control.NewControlLaw(ctrl.Gains),
		params: params,
		f:      mat.NewVecDense(3, nil),
		tau:    mat.NewVecDense(3, nil),
	}
	r.adapt = control.NewAdaptiveEstimator(params, ctrl.Gains.Deadband)
	r.meas.Store(PoseMeasurement{Qw: 1})
	r.ref.Store(ReferenceUpdate{})
	return r, rec
}

func (w *frameRecorder) decode(t *testing.T, cmap *utils.CANMap, id uint32) map[string]float64 {
	t.Helper()
	f, ok := w.last(id)
	require.True(t, ok, "no frame with id 0x%X transmitted", id)
	values, err := cmap.DecodeFrame(f.ID, f.Data[:f.Length])
	require.NoError(t, err)
	return values
}

func frameID(t *testing.T, cmap *utils.CANMap, name string) uint32 {
	t.Helper()
	fd, err := cmap.FrameByName(name)
	require.NoError(t, err)
	return fd.ID
}

func TestPrimingTickPublishesStateOnly(t *testing.T) {
	r, rec := newTestRunner(t)
	ctx := context.Background()

	require.NoError(t, r.cycle(ctx, time.Now()))

	_, gotPose := rec.last(frameID(t, r.cmap, FrameStatePose))
	_, gotVel := rec.last(frameID(t, r.cmap, FrameStateVel))
	_, gotCmd := rec.last(frameID(t, r.cmap, FrameActCmd))
	assert.True(t, gotPose)
	assert.True(t, gotVel)
	assert.False(t, gotCmd, "priming tick must not command the actuators")
	assert.False(t, r.lastTick.IsZero())
}

func TestInactiveCycleHoldsZeroCommand(t *testing.T) {
	r, rec := newTestRunner(t)
	ctx := context.Background()

	t0 := time.Now()
	require.NoError(t, r.cycle(ctx, t0))
	require.NoError(t, r.cycle(ctx, t0.Add(100*time.Millisecond)))

	cmd := rec.decode(t, r.cmap, frameID(t, r.cmap, FrameActCmd))
	assert.Zero(t, cmd["cmd_x"])
	assert.Zero(t, cmd["cmd_y"])
	assert.Zero(t, cmd["cmd_theta"])

	_, gotErr := rec.last(frameID(t, r.cmap, FrameTrackErr))
	_, gotParams := rec.last(frameID(t, r.cmap, FrameParamO))
	assert.False(t, gotErr, "diagnostics are active-only")
	assert.False(t, gotParams, "parameter estimates are active-only")
}

func TestActiveStepReference(t *testing.T) {
	r, rec := newTestRunner(t)
	ctx := context.Background()

	// Robot parked at the origin, unit step in desired x.
	r.mode.Store(true)
	r.ref.Store(ReferenceUpdate{QDes: [3]float64{1, 0, 0}})

	t0 := time.Now()
	require.NoError(t, r.cycle(ctx, t0))
	require.True(t, r.active)
	require.NoError(t, r.cycle(ctx, t0.Add(100*time.Millisecond)))

	// q_err = -1 in x; at rest s = L*q_err = (-l_lin, 0, 0).
	errs := rec.decode(t, r.cmap, frameID(t, r.cmap, FrameTrackErr))
	assert.InDelta(t, -1.0, errs["err_x"], 1e-3)

	lLin := r.ctrl.Gains.LLin
	sv := rec.decode(t, r.cmap, frameID(t, r.cmap, FrameSlidingVar))
	assert.InDelta(t, -lLin, sv["s_x"], 1e-3)
	assert.InDelta(t, 0.0, sv["s_y"], 1e-3)
	assert.InDelta(t, lLin, sv["s_norm"], 1e-3)

	// With zero reference rates every regressor term vanishes, so the
	// command is the pure damping term -Kd*s passed through an identity
	// moment-arm correction.
	cmd := rec.decode(t, r.cmap, frameID(t, r.cmap, FrameActCmd))
	assert.InDelta(t, r.ctrl.Gains.KdLin*lLin, cmd["cmd_x"], 1e-2)
	assert.InDelta(t, 0.0, cmd["cmd_y"], 1e-2)

	// The seeded mass estimate goes out on the parameter channel.
	po := rec.decode(t, r.cmap, frameID(t, r.cmap, FrameParamO))
	assert.InDelta(t, r.ctrl.Gains.MInit, po["o_0"], 0.05)
}

func TestModeLifecycle(t *testing.T) {
	r, rec := newTestRunner(t)
	ctx := context.Background()

	// Excite the mass column so the estimate drifts away from its seed.
	r.mode.Store(true)
	r.ref.Store(ReferenceUpdate{
		QDes:   [3]float64{1, 0, 0},
		DDQDes: [3]float64{1, 0, 0},
	})

	now := time.Now()
	require.NoError(t, r.cycle(ctx, now))
	for i := 0; i < 5; i++ {
		now = now.Add(100 * time.Millisecond)
		require.NoError(t, r.cycle(ctx, now))
	}
	require.True(t, r.active)
	drifted := r.params.Inertial.Value.AtVec(0)
	require.NotEqual(t, r.ctrl.Gains.MInit, drifted)

	// Deactivation destroys the adaptive and force state within one cycle.
	r.mode.Store(false)
	now = now.Add(100 * time.Millisecond)
	require.NoError(t, r.cycle(ctx, now))
	require.False(t, r.active)
	for _, v := range r.params.Concat() {
		assert.Zero(t, v)
	}
	cmd := rec.decode(t, r.cmap, frameID(t, r.cmap, FrameActCmd))
	assert.Zero(t, cmd["cmd_x"])

	// Reactivating with the reference back at rest reproduces a fresh
	// parameter set: seeds restored, everything else still zero.
	r.ref.Store(ReferenceUpdate{})
	r.mode.Store(true)
	now = now.Add(100 * time.Millisecond)
	require.NoError(t, r.cycle(ctx, now))
	require.True(t, r.active)

	fresh, err := control.NewParamSet(r.ctrl.Gains)
	require.NoError(t, err)
	assert.Equal(t, fresh.Concat(), r.params.Concat())
}

func TestActivationRefusedOnBadConfig(t *testing.T) {
	r, _ := newTestRunner(t)
	r.cfg.ConfigPath = filepath.Join(t.TempDir(), "missing.json")

	r.mode.Store(true)
	require.NoError(t, r.cycle(context.Background(), time.Now()))
	assert.False(t, r.active, "activation must be refused when the config cannot be loaded")
}

func TestReceiveLoopLatchesGroupedFrames(t *testing.T) {
	r, _ := newTestRunner(t)
	reader := &scriptedReader{frames: make(chan can.Frame, 16)}
	r.reader = reader

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.receiveLoop(ctx)

	send := func(name string, values map[string]float64) {
		f, err := r.cmap.EncodeFrame(name, values)
		require.NoError(t, err)
		reader.frames <- f
	}

	// Pose latches only once the quaternion half arrives.
	send(FramePoseXY, map[string]float64{"meas_x": 1.5, "meas_y": -0.25})
	send(FramePoseQuat, map[string]float64{"quat_w": 1})
	require.Eventually(t, func() bool {
		m, _ := r.meas.Load()
		return m.X != 0
	}, time.Second, 5*time.Millisecond)
	m, _ := r.meas.Load()
	assert.InDelta(t, 1.5, m.X, 1e-4)
	assert.InDelta(t, -0.25, m.Y, 1e-4)
	assert.InDelta(t, 1.0, m.Qw, 1e-3)

	// Reference latches only on the acceleration frame; pos and vel alone
	// leave the previous snapshot in place.
	send(FrameRefPos, map[string]float64{"refp_x": 2})
	send(FrameRefVel, map[string]float64{"refv_x": 0.5})
	send(FrameRefAcc, map[string]float64{"refa_x": 0.1})
	require.Eventually(t, func() bool {
		ref, _ := r.ref.Load()
		return ref.QDes[0] != 0
	}, time.Second, 5*time.Millisecond)
	ref, _ := r.ref.Load()
	assert.InDelta(t, 2.0, ref.QDes[0], 1e-3)
	assert.InDelta(t, 0.5, ref.DQDes[0], 1e-3)
	assert.InDelta(t, 0.1, ref.DDQDes[0], 1e-3)

	// Mode flag.
	send(FrameMode, map[string]float64{"active": 1})
	require.Eventually(t, func() bool {
		want, ok := r.mode.Load()
		return ok && want
	}, time.Second, 5*time.Millisecond)
}
