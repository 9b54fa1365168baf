package main

import (
	"encoding/json"
	"fmt"
	"os"

	control "adaptive-manip-core/adaptive_control"
	estimation "adaptive-manip-core/state_estimation"
)

// Default bounds matching the original deployment; everything else in the
// file is required and activation fails without it.
const (
	defaultVMax    = 5.0
	defaultWrapTol = 0.1
	defaultMInit   = 15.0
	defaultJInit   = 15.0
)

// ControllerConfig is the full gain/bound snapshot loaded at startup and
// re-loaded on every inactive-to-active transition. Nothing is hot-reloaded
// mid-cycle: the Runner swaps the whole snapshot at a cycle boundary.
type ControllerConfig struct {
	Gains control.GainConfig `json:"gains"`

	QFilt       float64   `json:"q_filt"`       // pose low-pass coefficient [0,1)
	DQFilt      float64   `json:"dq_filt"`      // velocity low-pass coefficient [0,1)
	VMax        float64   `json:"v_max"`        // velocity clip bound
	WrapTol     float64   `json:"wrap_tol"`     // angular branch tolerance (rad)
	MomentArm   []float64 `json:"moment_arm"`   // body-frame contact offset, 2 components
	OffsetAngle float64   `json:"offset_angle"` // payload frame offset (rad); kept for bus configs that set it
}

// LoadControllerConfig reads and validates a config snapshot. Any invalid or
// missing required value is an error: the controller must never go active on
// a partial configuration.
func LoadControllerConfig(path string) (*ControllerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &ControllerConfig{
		VMax:    defaultVMax,
		WrapTol: defaultWrapTol,
		Gains: control.GainConfig{
			MInit: defaultMInit,
			JInit: defaultJInit,
		},
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ControllerConfig) validate() error {
	g := &c.Gains
	if g.LLin <= 0 || g.LAng <= 0 {
		return fmt.Errorf("invalid sliding gains: l_lin=%g l_ang=%g", g.LLin, g.LAng)
	}
	if g.KdLin < 0 || g.KdAng < 0 {
		return fmt.Errorf("invalid damping gains: kd_lin=%g kd_ang=%g", g.KdLin, g.KdAng)
	}
	if g.Gamma <= 0 {
		return fmt.Errorf("invalid adaptation rate gamma=%g", g.Gamma)
	}
	if g.Deadband <= 0 {
		return fmt.Errorf("invalid deadband=%g", g.Deadband)
	}
	if len(g.OMags) != 4 || len(g.GMags) != 2 || len(g.DMags) != 4 || len(g.CMags) != 4 {
		return fmt.Errorf("magnitude vectors must have lengths 4/2/4/4, got %d/%d/%d/%d",
			len(g.OMags), len(g.GMags), len(g.DMags), len(g.CMags))
	}
	if c.QFilt < 0 || c.QFilt >= 1 {
		return fmt.Errorf("q_filt must be in [0,1), got %g", c.QFilt)
	}
	if c.DQFilt < 0 || c.DQFilt >= 1 {
		return fmt.Errorf("dq_filt must be in [0,1), got %g", c.DQFilt)
	}
	if c.VMax <= 0 {
		return fmt.Errorf("v_max must be positive, got %g", c.VMax)
	}
	if c.WrapTol <= 0 {
		return fmt.Errorf("wrap_tol must be positive, got %g", c.WrapTol)
	}
	if len(c.MomentArm) != 2 {
		return fmt.Errorf("moment_arm must have 2 components, got %d", len(c.MomentArm))
	}
	return nil
}

// FilterConfig extracts the estimator tuning from the snapshot.
func (c *ControllerConfig) FilterConfig() estimation.FilterConfig {
	return estimation.FilterConfig{
		QFilt:     c.QFilt,
		DQFilt:    c.DQFilt,
		VMax:      c.VMax,
		WrapTol:   c.WrapTol,
		MomentArm: [2]float64{c.MomentArm[0], c.MomentArm[1]},
	}
}
