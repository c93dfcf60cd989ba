// Package confidence maps raw L2 distances to ordinal confidence tiers.
//
// The thresholds are tuned for L2 distance over normalized vectors from a
// multilingual sentence encoder. They are not general-purpose: under this
// encoder, near-duplicate off-topic text can score artificially close, so
// distances below NearDuplicateFloor are treated as Low rather than High.
package confidence

// Tier is an ordinal confidence label for a retrieved result.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Threshold constants for the distance→tier ladder. The ladder must be walked
// in order: Low appears both below NearDuplicateFloor and above MediumCeiling,
// so the mapping is not monotonic.
const (
	// NearDuplicateFloor: distances below this are suspiciously close and
	// classify Low.
	NearDuplicateFloor float32 = 0.5
	// HighCeiling: distances in [NearDuplicateFloor, HighCeiling] classify High.
	HighCeiling float32 = 0.8
	// MediumCeiling: distances in (HighCeiling, MediumCeiling] classify Medium.
	// Beyond it, Low.
	MediumCeiling float32 = 1.2
)

// Classify maps a raw distance to a tier. Total over all non-negative
// distances and deterministic.
func Classify(d float32) Tier {
	switch {
	case d < NearDuplicateFloor:
		return TierLow
	case d <= HighCeiling:
		return TierHigh
	case d <= MediumCeiling:
		return TierMedium
	default:
		return TierLow
	}
}
