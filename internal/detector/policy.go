package detector

import "github.com/ironsheep/stamp-detector/internal/config"

// Reason explains a decision.
type Reason string

const (
	ReasonStrong  Reason = "strong-coarse"
	ReasonBanded  Reason = "banded-with-refine"
	ReasonNoMatch Reason = "no-match"

	// Soft outcomes that never reached a decision.
	ReasonNoStamps Reason = "no-stamps"
	ReasonNoImages Reason = "no-images"
	ReasonBudget   Reason = "budget-exhausted"
)

// Local confirmation levels that count as strong regardless of the bands.
const (
	nccStrong  = 0.68
	ssimStrong = 0.62
)

// Thresholds is the two-tier decision policy.
type Thresholds struct {
	Hi        float64
	Lo        float64
	MarginMin float64
	MarginLo  float64
	NCCBand   float64
	SSIMBand  float64
}

// ThresholdsFromConfig extracts the policy from cfg.
func ThresholdsFromConfig(cfg *config.Config) Thresholds {
	return Thresholds{
		Hi:        cfg.ThresholdHi,
		Lo:        cfg.ThresholdLo,
		MarginMin: cfg.MarginMin,
		MarginLo:  cfg.MarginLo,
		NCCBand:   cfg.NCCBand,
		SSIMBand:  cfg.SSIMBand,
	}
}

// Evidence is what the policy decides on. Localized is true when the
// locator produced a bounding box and the patch was verified.
type Evidence struct {
	HasTop    bool
	Top       float64
	Margin    float64
	Localized bool
	NCC       float64
	SSIM      float64
}

// Decision is the policy verdict.
type Decision struct {
	Match  bool
	Reason Reason
}

// Decide applies the policy:
//
//   - strong: top >= Hi and margin >= MarginMin
//   - banded: top >= Lo and margin >= MarginLo, with a verified patch where
//     ncc or ssim clears either the strong level or its band
//   - otherwise no match
func (t Thresholds) Decide(e Evidence) Decision {
	if !e.HasTop {
		return Decision{Reason: ReasonNoMatch}
	}
	if e.Top >= t.Hi && e.Margin >= t.MarginMin {
		return Decision{Match: true, Reason: ReasonStrong}
	}

	band := e.Top >= t.Lo && e.Margin >= t.MarginLo
	refineStrong := e.Localized && (e.NCC >= nccStrong || e.SSIM >= ssimStrong)
	refineBand := e.Localized && (e.NCC >= t.NCCBand || e.SSIM >= t.SSIMBand)
	if band && (refineStrong || refineBand) {
		return Decision{Match: true, Reason: ReasonBanded}
	}
	return Decision{Reason: ReasonNoMatch}
}
