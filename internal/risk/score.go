package risk

// ComputeScore sums the impacts of the given flags and clamps the total to
// [MinScore, MaxScore]. Duplicate ids count once and unknown ids are ignored.
func ComputeScore(flags []string) int {
	seen := make(map[string]bool, len(flags))
	total := 0
	for _, f := range flags {
		if seen[f] {
			continue
		}
		seen[f] = true
		if impact, ok := impacts[f]; ok {
			total += impact
		}
	}
	return Clamp(total)
}

// Clamp bounds v to [MinScore, MaxScore].
func Clamp(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
