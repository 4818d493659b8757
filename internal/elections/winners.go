package elections

import "sort"

// SelectWinners picks, per role, the first candidate in display order: most votes, then
// player name, then registration order. Roles without candidates have no winner. The
// result is ordered by role identifier.
func SelectWinners(candidates []Candidate) []Candidate {
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		left, right := ordered[i], ordered[j]
		if left.Votes != right.Votes {
			return left.Votes > right.Votes
		}
		if left.PlayerName != right.PlayerName {
			return left.PlayerName < right.PlayerName
		}
		return left.ID < right.ID
	})

	seen := make(map[string]bool)
	winners := make([]Candidate, 0)
	for _, candidate := range ordered {
		if seen[candidate.Role] {
			continue
		}
		seen[candidate.Role] = true
		winners = append(winners, candidate)
	}
	sort.SliceStable(winners, func(i, j int) bool {
		return winners[i].Role < winners[j].Role
	})
	return winners
}
