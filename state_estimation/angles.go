package estimation

import "math"

// QuaternionToYaw converts a world-frame orientation quaternion to the
// signed planar heading of the body.
func QuaternionToYaw(qx, qy, qz, qw float64) float64 {
	cosTh := 2*(qx*qx+qw*qw) - 1
	sinTh := -2 * (qx*qy - qz*qw)
	return math.Atan2(sinTh, cosTh)
}

// UnwrapToward shifts raw by one turn toward prev when the two values sit on
// opposite sides of the +/-pi branch cut, i.e. when they differ by more than
// 2*pi - wrapTol. Smaller discrepancies pass through untouched.
func UnwrapToward(raw, prev, wrapTol float64) float64 {
	if math.Abs(prev-raw) > 2*math.Pi-wrapTol {
		if prev > raw {
			return raw + 2*math.Pi
		}
		return raw - 2*math.Pi
	}
	return raw
}

// WrapStencil keeps the three-point derivative stencil (newest, current,
// previous angle) branch-continuous. The newest value is pulled toward the
// current one and the previous value toward the current one, each by one
// turn when the gap reaches 2*pi - wrapTol.
func WrapStencil(zNew, zCurr, zPrev, wrapTol float64) (float64, float64, float64) {
	if math.Abs(zNew-zCurr) >= 2*math.Pi-wrapTol {
		if zNew < zCurr {
			zNew += 2 * math.Pi
		} else {
			zNew -= 2 * math.Pi
		}
	}

	if math.Abs(zCurr-zPrev) >= 2*math.Pi-wrapTol {
		if zCurr > zPrev {
			zPrev += 2 * math.Pi
		} else {
			zPrev -= 2 * math.Pi
		}
	}

	return zNew, zCurr, zPrev
}
