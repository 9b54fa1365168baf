package control

// GainConfig holds the adaptive-control gains and bounds loaded at each
// activation. Magnitude vectors scale the shared adaptation rate per
// parameter component, so physically large parameters can adapt faster
// without destabilizing the small ones.
type GainConfig struct {
	LLin  float64 `json:"l_lin"`  // sliding-variable pose gain, linear axes
	LAng  float64 `json:"l_ang"`  // sliding-variable pose gain, angular axis
	KdLin float64 `json:"kd_lin"` // damping gain, linear axes
	KdAng float64 `json:"kd_ang"` // damping gain, angular axis

	Gamma float64   `json:"gamma"`  // global adaptation rate
	OMags []float64 `json:"o_mags"` // inertial group magnitudes (4)
	GMags []float64 `json:"g_mags"` // moment-arm group magnitudes (2)
	DMags []float64 `json:"d_mags"` // viscous group magnitudes (4)
	CMags []float64 `json:"c_mags"` // Coulomb group magnitudes (4)

	Deadband float64 `json:"deadband"` // ||s|| threshold below which adaptation freezes
	MInit    float64 `json:"m_init"`   // mass seed applied at activation (kg)
	JInit    float64 `json:"j_init"`   // inertia seed applied at activation (kg m^2)
}
