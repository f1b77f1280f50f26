//go:build linux

package v4l2

import "math"

// fractionEpsilon is single-precision machine epsilon (FLT_EPSILON). Frame
// rates arrive as float32-precision values, so tighter tolerances only
// produce larger terms without a better interval.
const fractionEpsilon = 1.1920929e-07

// FloatToFraction approximates a non-negative value as an exact fraction
// using continued-fraction expansion within fractionEpsilon. Whole numbers
// come back with denominator 1. Negative, NaN and infinite inputs, and
// values that overflow uint32, yield 0/1.
func FloatToFraction(f float64) Framerate {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > math.MaxUint32 {
		return Framerate{Numerator: 0, Denominator: 1}
	}

	whole, num, den := continuedFraction(f, fractionEpsilon)
	num += whole * den
	if num > math.MaxUint32 || den > math.MaxUint32 {
		return Framerate{Numerator: 0, Denominator: 1}
	}
	return Framerate{Numerator: uint32(num), Denominator: uint32(den)}
}

// continuedFraction returns the integer part of f and the fraction
// approximating its remainder. The tolerance grows by p/frac at every level
// (frac < 1, so it at least doubles), which bounds the recursion depth.
func continuedFraction(f, p float64) (whole, num, den int64) {
	whole = int64(f)
	frac := math.Abs(f - float64(whole))

	if frac <= p {
		return whole, 0, 1
	}

	a, n, d := continuedFraction(1/frac, p+p/frac)
	return whole, d, d*a + n
}

// FrameInterval converts frames-per-second into the seconds-per-frame
// fraction the driver's timeperframe field expects. A 30 fps request
// becomes 1/30; 29.97 becomes 100/2997. Rates FloatToFraction cannot
// represent (zero, non-finite, or past uint32 in either term) yield 0/1,
// which Valid rejects.
func FrameInterval(fps float64) Framerate {
	rate := FloatToFraction(fps)
	if rate.Numerator == 0 {
		return Framerate{Numerator: 0, Denominator: 1}
	}
	return Framerate{Numerator: rate.Denominator, Denominator: rate.Numerator}
}
