package matcher

import "github.com/fbasourcing/go-source-fba/config"

// MatchQuality tiers a title-overlap score.
type MatchQuality string

const (
	QualityVeryLow MatchQuality = "very_low"
	QualityLow     MatchQuality = "low"
	QualityMedium  MatchQuality = "medium"
	QualityHigh    MatchQuality = "high"
)

// Verdict is the validator's assessment of a chosen candidate.
type Verdict struct {
	Quality    MatchQuality `json:"match_quality"`
	Confidence float64      `json:"confidence"`
	Overlap    float64      `json:"title_overlap_score"`
}

// Validator grades supplier/Amazon title pairs against configured tiers.
// It is a deliberately simple word-overlap gate, not a full matcher.
type Validator struct {
	high   float64
	medium float64
	low    float64
}

// NewValidator reads tier thresholds from cfg.
func NewValidator(cfg *config.Config) *Validator {
	return &Validator{
		high:   cfg.HighMatchThreshold,
		medium: cfg.MediumMatchThreshold,
		low:    cfg.LowMatchThreshold,
	}
}

// Assess scores the pair and maps the score onto a quality tier.
func (v *Validator) Assess(supplierTitle, amazonTitle string) Verdict {
	overlap := TitleOverlap(supplierTitle, amazonTitle)
	switch {
	case overlap >= v.high:
		return Verdict{Quality: QualityHigh, Confidence: 0.9, Overlap: overlap}
	case overlap >= v.medium:
		return Verdict{Quality: QualityMedium, Confidence: 0.6, Overlap: overlap}
	case overlap >= v.low:
		return Verdict{Quality: QualityLow, Confidence: 0.3, Overlap: overlap}
	default:
		return Verdict{Quality: QualityVeryLow, Confidence: 0.1, Overlap: overlap}
	}
}
