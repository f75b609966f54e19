package risk

import "strings"

// ExtractFlags derives indicator ids from a trimmed, non-empty address.
//
// Substring checks run on the ASCII-lowercased address; length checks use the
// length of the address as given. Each id appears at most once, in rule order.
func ExtractFlags(address string) []string {
	lower := asciiLower(address)
	n := len(address)

	flags := make([]string, 0, len(rules))
	if strings.HasSuffix(lower, "bad") || strings.HasPrefix(lower, "0xdead") {
		flags = append(flags, HackProceeds)
	}
	if strings.Contains(lower, "mix") || strings.Contains(lower, "tornado") {
		flags = append(flags, MixerUse)
	}
	if strings.HasPrefix(lower, "bc1dark") || strings.Contains(lower, "hydra") {
		flags = append(flags, DarknetLink)
	}

	// Length based placeholders for volume heuristics.
	if n%7 == 0 {
		flags = append(flags, LargeTx)
	}
	if n%5 == 0 {
		flags = append(flags, Structuring)
	}

	if strings.Contains(lower, "coinbase") || strings.Contains(lower, "binance") {
		flags = append(flags, KYCExchange)
	}
	if n%11 == 0 {
		flags = append(flags, Hodl)
	}
	return flags
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
