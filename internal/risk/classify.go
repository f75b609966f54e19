package risk

// Tier is a classification bucket derived from a risk score.
type Tier string

const (
	TierSafe     Tier = "Safe"
	TierModerate Tier = "Moderate Risk"
	TierHigh     Tier = "High Risk"
	TierExtreme  Tier = "Extreme Risk"
)

// Upper bounds (inclusive) of each tier.
const (
	SafeMax     = 20
	ModerateMax = 50
	HighMax     = 70
)

// Classification pairs a tier with its recommended action.
type Classification struct {
	Tier           Tier   `json:"tier"`
	Recommendation string `json:"recommendation"`
}

// Classify maps a score to its tier and recommendation. First match wins.
func Classify(score int) Classification {
	switch {
	case score <= SafeMax:
		return Classification{Tier: TierSafe, Recommendation: "No restrictions"}
	case score <= ModerateMax:
		return Classification{Tier: TierModerate, Recommendation: "Manual review needed"}
	case score <= HighMax:
		return Classification{Tier: TierHigh, Recommendation: "Freeze transactions and notify authorities"}
	default:
		return Classification{Tier: TierExtreme, Recommendation: "Block immediately and initiate legal action"}
	}
}
