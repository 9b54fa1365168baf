package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"

	control "adaptive-manip-core/adaptive_control"
	estimation "adaptive-manip-core/state_estimation"
	"adaptive-manip-core/utils"
)

// latch is a single-slot, latest-wins mailbox between the RX goroutine and
// the control tick. A burst of updates between ticks collapses to the newest
// value; the tick reads each latch once per cycle so the whole cycle sees one
// consistent snapshot.
type latch[T any] struct {
	p atomic.Pointer[T]
}

func (l *latch[T]) Store(v T) { l.p.Store(&v) }

func (l *latch[T]) Load() (T, bool) {
	if p := l.p.Load(); p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}

type RunnerConfig struct {
	Interface     string
	MapPath       string
	ConfigPath    string
	CmdFrame      string
	TelemetryPath string
}

// Runner owns the control loop: it drives one estimate/control/adapt/publish
// cycle per tick of the actuator frame's cycle time and applies mode
// transitions at cycle boundaries.
type Runner struct {
	cfg    RunnerConfig
	log    *utils.Logger
	cmap   *utils.CANMap
	writer utils.CANWriter
	reader utils.CANReader
	fd     *utils.FrameDef // actuator command frame; its cycle_ms is the loop period

	ctrl      *ControllerConfig
	est       *estimation.StateEstimator
	law       *control.ControlLaw
	params    *control.ParamSet
	adapt     *control.AdaptiveEstimator
	telemetry *telemetryRecorder

	meas latch[PoseMeasurement]
	ref  latch[ReferenceUpdate]
	mode latch[bool]

	active   bool
	lastTick time.Time
	start    time.Time
	cycles   uint64
	f        *mat.VecDense
	tau      *mat.VecDense
}

func NewRunner(ctx context.Context, cfg RunnerConfig, log *utils.Logger) (*Runner, error) {
	cmap, err := utils.LoadCANMap(cfg.MapPath)
	if err != nil {
		return nil, fmt.Errorf("load can map: %w", err)
	}

	fd, err := cmap.FrameByName(cfg.CmdFrame)
	if err != nil {
		return nil, fmt.Errorf("frame: %w", err)
	}
	if fd.CycleMS <= 0 {
		return nil, fmt.Errorf("frame %s has invalid cycle_ms %d", fd.Name, fd.CycleMS)
	}

	ctrl, err := LoadControllerConfig(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("controller config: %w", err)
	}

	writer, err := utils.NewSocketCANWriter(ctx, cfg.Interface)
	if err != nil {
		return nil, err
	}
	reader, err := utils.NewSocketCANReader(ctx, cfg.Interface)
	if err != nil {
		writer.Close()
		return nil, err
	}

	params, err := control.NewParamSet(ctrl.Gains)
	if err != nil {
		writer.Close()
		reader.Close()
		return nil, fmt.Errorf("parameter groups: %w", err)
	}

	r := &Runner{
		cfg:    cfg,
		log:    log,
		cmap:   cmap,
		writer: writer,
		reader: reader,
		fd:     fd,
		ctrl:   ctrl,
		est:    estimation.NewStateEstimator(ctrl.FilterConfig()),
		law:    control.NewControlLaw(ctrl.Gains),
		params: params,
		f:      mat.NewVecDense(3, nil),
		tau:    mat.NewVecDense(3, nil),
	}
	r.adapt = control.NewAdaptiveEstimator(params, ctrl.Gains.Deadband)

	// Until the first sample lands the slots hold a parked pose at the
	// origin, identity orientation.
	r.meas.Store(PoseMeasurement{Qw: 1})
	r.ref.Store(ReferenceUpdate{})

	if cfg.TelemetryPath != "" {
		tr, err := newTelemetryRecorder(cfg.TelemetryPath)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.telemetry = tr
	}

	return r, nil
}

func (r *Runner) Close() {
	if r.telemetry != nil {
		_ = r.telemetry.Close()
	}
	if r.reader != nil {
		_ = r.reader.Close()
	}
	if r.writer != nil {
		_ = r.writer.Close()
	}
}

func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Starting control loop: cmd_frame=%s id=0x%X cycle_ms=%d iface=%s config=%s",
		r.fd.Name, r.fd.ID, r.fd.CycleMS, r.cfg.Interface, r.cfg.ConfigPath)

	go r.receiveLoop(ctx)

	r.start = time.Now()
	ticker := time.NewTicker(time.Duration(r.fd.CycleMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Warn("Context canceled; stopping control loop after %d cycles", r.cycles)
			return ctx.Err()
		case now := <-ticker.C:
			if err := r.cycle(ctx, now); err != nil {
				return err
			}
		}
	}
}

// cycle runs one full tick: mode edge, estimation, control law, adaptation,
// publish. Mode changes latched mid-cycle only land here, at the boundary.
func (r *Runner) cycle(ctx context.Context, now time.Time) error {
	if want, ok := r.mode.Load(); ok {
		r.applyMode(want)
	}

	// First tick only establishes the timebase; there is no dt to
	// difference against yet, so the velocity estimate stays zero.
	if r.lastTick.IsZero() {
		r.lastTick = now
		r.publishStateEstimate(ctx)
		return nil
	}
	dt := now.Sub(r.lastTick).Seconds()
	r.lastTick = now

	meas, _ := r.meas.Load()
	r.est.Step(meas.Vec(), dt)

	q := r.est.Pose()
	dq := r.est.Velocity()
	vContact := r.est.ContactVelocity()

	qErr := mat.NewVecDense(3, nil)
	s := mat.NewVecDense(3, nil)
	sNorm := 0.0
	ref, _ := r.ref.Load()
	qDes, dqDes, ddqDes := ref.Vecs()

	if r.active {
		qErr = r.law.TrackingError(q, qDes)
		var dqr, ddqr *mat.VecDense
		s, _, dqr, ddqr = r.law.SlidingTerms(qErr, dq, dqDes, ddqDes)
		sNorm = mat.Norm(s, 2)

		cs := &control.CycleState{
			Q:        q,
			DQ:       dq,
			VContact: vContact,
			DQr:      dqr,
			DDQr:     ddqr,
			S:        s,
		}
		r.f = r.law.Force(r.params, cs)
		cs.F = r.f
		r.tau = control.ActuatorCommand(r.f, r.params, q.AtVec(2))

		r.adapt.Step(cs, dt)

		r.publishDiagnostic(ctx, FrameTrackErr, vec3Values("err", qErr))
		sv := vec3Values("s", s)
		sv["s_norm"] = sNorm
		r.publishDiagnostic(ctx, FrameSlidingVar, sv)
		r.publishDiagnostic(ctx, FrameParamO, paramValues("o_", r.params.Inertial.Value))
		r.publishDiagnostic(ctx, FrameParamG, paramValues("g_", r.params.MomentArm.Value))
		r.publishDiagnostic(ctx, FrameParamD, paramValues("d_", r.params.Viscous.Value))
		r.publishDiagnostic(ctx, FrameParamC, paramValues("c_", r.params.Coulomb.Value))
	}

	// The actuator command goes out every cycle; while inactive it simply
	// repeats the last held value.
	cmd, err := r.cmap.EncodeFrame(r.fd.Name, vec3Values("cmd", r.tau))
	if err != nil {
		return fmt.Errorf("encode %s: %w", r.fd.Name, err)
	}
	if err := r.writer.WriteFrame(ctx, cmd); err != nil {
		r.log.Critical("Transmit failed on %s: %v", r.fd.Name, err)
		return err
	}

	r.publishStateEstimate(ctx)
	r.recordTelemetry(q, dq, qDes, qErr, s, sNorm)

	r.cycles++
	if r.active && r.cycles%50 == 0 {
		r.log.Debug("cycle=%d s_norm=%.4f tau=(%.2f, %.2f, %.2f) m_hat=%.2f j_hat=%.2f",
			r.cycles, sNorm, r.tau.AtVec(0), r.tau.AtVec(1), r.tau.AtVec(2),
			r.params.Inertial.Value.AtVec(0), r.params.Inertial.Value.AtVec(1))
	}
	return nil
}

// applyMode handles the two lifecycle edges. Going active reloads a fresh
// config snapshot and refuses the transition if the snapshot is invalid;
// going inactive destroys the adaptive and force state. Estimator state is
// never touched: pose tracking continues regardless of mode.
func (r *Runner) applyMode(want bool) {
	if want == r.active {
		return
	}
	if want {
		ctrl, err := LoadControllerConfig(r.cfg.ConfigPath)
		if err != nil {
			r.log.Error("Activation refused, staying inactive: %v", err)
			return
		}
		r.ctrl = ctrl
		r.est.Reconfigure(ctrl.FilterConfig())
		r.law = control.NewControlLaw(ctrl.Gains)
		if err := r.params.Reconfigure(ctrl.Gains); err != nil {
			r.log.Error("Activation refused, staying inactive: %v", err)
			return
		}
		r.adapt.SetDeadband(ctrl.Gains.Deadband)
		r.active = true
		r.log.Info("Controller active: deadband=%.4f gamma=%.4f m_init=%.1f j_init=%.1f",
			ctrl.Gains.Deadband, ctrl.Gains.Gamma, ctrl.Gains.MInit, ctrl.Gains.JInit)
	} else {
		r.params.Reset()
		r.f.Zero()
		r.tau.Zero()
		r.active = false
		r.log.Info("Controller inactive: adaptive and force state reset")
	}
}

// publishDiagnostic sends a best-effort telemetry frame; failures are logged
// and the cycle continues.
func (r *Runner) publishDiagnostic(ctx context.Context, frameName string, values map[string]float64) {
	frame, err := r.cmap.EncodeFrame(frameName, values)
	if err != nil {
		r.log.Error("Encode %s failed: %v", frameName, err)
		return
	}
	if err := r.writer.WriteFrame(ctx, frame); err != nil {
		r.log.Error("Transmit %s failed: %v", frameName, err)
	}
}

func (r *Runner) publishStateEstimate(ctx context.Context) {
	r.publishDiagnostic(ctx, FrameStatePose, vec3Values("pose", r.est.Pose()))
	r.publishDiagnostic(ctx, FrameStateVel, vec3Values("vel", r.est.Velocity()))
}

func (r *Runner) recordTelemetry(q, dq, qDes, qErr, s *mat.VecDense, sNorm float64) {
	if r.telemetry == nil {
		return
	}
	row := make([]float64, 0, len(telemetryColumns)-1)
	row = append(row, time.Since(r.start).Seconds())
	for _, v := range []*mat.VecDense{q, dq, qDes, qErr, s} {
		row = append(row, v.AtVec(0), v.AtVec(1), v.AtVec(2))
	}
	row = append(row, sNorm)
	for _, v := range []*mat.VecDense{r.f, r.tau} {
		row = append(row, v.AtVec(0), v.AtVec(1), v.AtVec(2))
	}
	row = append(row, r.params.Concat()...)
	if err := r.telemetry.Row(row, r.active); err != nil {
		r.log.Error("Telemetry write failed: %v", err)
	}
}

// receiveLoop reads bus frames and refreshes the input latches. Pose and
// reference updates span multiple frames; the latch is replaced when the
// final frame of the group lands, so the control tick never sees a half
// update.
func (r *Runner) receiveLoop(ctx context.Context) {
	r.log.Debug("RX loop started")
	defer r.log.Debug("RX loop stopped")

	var lastX, lastY float64
	var pending ReferenceUpdate

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := r.reader.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Error("RX error: %v", err)
			continue
		}

		fd, err := r.cmap.FrameByID(uint32(frame.ID))
		if err != nil {
			r.log.Trace("RX unknown id=0x%X", uint32(frame.ID))
			continue
		}
		if fd.Direction != "rx" {
			// Our own transmissions echoed back by the interface.
			continue
		}

		values, err := r.cmap.DecodeFrame(uint32(frame.ID), frame.Data[:frame.Length])
		if err != nil {
			r.log.Error("RX decode %s: %v", fd.Name, err)
			continue
		}

		switch fd.Name {
		case FramePoseXY:
			lastX, lastY = values["meas_x"], values["meas_y"]
		case FramePoseQuat:
			r.meas.Store(PoseMeasurement{
				X:  lastX,
				Y:  lastY,
				Qx: values["quat_x"],
				Qy: values["quat_y"],
				Qz: values["quat_z"],
				Qw: values["quat_w"],
			})
		case FrameRefPos:
			pending.QDes = [3]float64{values["refp_x"], values["refp_y"], values["refp_theta"]}
		case FrameRefVel:
			pending.DQDes = [3]float64{values["refv_x"], values["refv_y"], values["refv_theta"]}
		case FrameRefAcc:
			pending.DDQDes = [3]float64{values["refa_x"], values["refa_y"], values["refa_theta"]}
			r.ref.Store(pending)
		case FrameMode:
			r.mode.Store(values["active"] > 0.5)
		}

		r.log.Trace("RX %s id=0x%X len=%d", fd.Name, uint32(frame.ID), frame.Length)
	}
}
