package models

// Amounts are whole currency units carried as int64. All rounding in the
// fund is half-up, matching how totals were historically kept by hand.

// RoundRate multiplies a non-negative amount by num/den with half-up
// rounding. Used for the 20% interest on grant and the 20% penalty sweep.
func RoundRate(amount, num, den int64) int64 {
	v := amount * num
	q := v / den
	if 2*(v%den) >= den {
		q++
	}
	return q
}

// RoundToStep rounds a non-negative amount to the nearest multiple of step,
// half-up.
func RoundToStep(amount, step int64) int64 {
	if step <= 0 {
		return amount
	}
	return (amount + step/2) / step * step
}

// Cassation rounding-step thresholds. The step is a policy knob, not a hard
// contract, but it is uniform across all members of one cassation run.
const (
	stepLargeFloor  = 1_000_000
	stepMediumFloor = 100_000
)

// StepFor picks the cassation rounding step from the size of the
// distributable fund: 100 for pools of at least 1,000,000, 50 from 100,000
// up, 25 below that.
func StepFor(fondsDisponible int64) int64 {
	switch {
	case fondsDisponible >= stepLargeFloor:
		return 100
	case fondsDisponible >= stepMediumFloor:
		return 50
	}
	return 25
}
