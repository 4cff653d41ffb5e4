package game

import (
	fp "github.com/repeale/fp-go"
)

// Tally derives the judge vote counts for both contestants. Counts are never
// stored; votes that are still pending, errored, or name someone who is not a
// contestant count for neither side.
func (r *RoundState) Tally() (a int, b int) {
	for i := range r.Votes {
		vote := &r.Votes[i]
		switch {
		case vote.CountsFor(r.Contestants[0]):
			a++
		case vote.CountsFor(r.Contestants[1]):
			b++
		}
	}
	return a, b
}

// VotesFor returns the votes cast for the contestant at index i.
func (r *RoundState) VotesFor(i int) []VoteInfo {
	contestant := r.Contestants[i]
	return fp.Filter(func(v VoteInfo) bool {
		return v.CountsFor(contestant)
	})(r.Votes)
}

// VoteShares returns each contestant's fraction of the votes cast so far, or
// zero for both when nobody has voted.
func (r *RoundState) VoteShares() (float64, float64) {
	a, b := r.Tally()
	return shares(a, b)
}

// Winner returns the index of the contestant with strictly more votes. There
// is no winner before the round is done or when the counts are equal.
func (r *RoundState) Winner() (int, bool) {
	if r.Phase != PhaseDone {
		return 0, false
	}

	a, b := r.Tally()
	switch {
	case a > b:
		return 0, true
	case b > a:
		return 1, true
	}
	return 0, false
}

// ViewerShares is like VoteShares for audience votes. ok is false when no
// viewer has voted, in which case the indicator should not be shown at all.
func (r *RoundState) ViewerShares() (a float64, b float64, ok bool) {
	va, vb := deref(r.ViewerVotesA), deref(r.ViewerVotesB)
	if va+vb <= 0 {
		return 0, 0, false
	}
	a, b = shares(va, vb)
	return a, b, true
}

func (r *RoundState) ViewerVotes() (int, int) {
	return deref(r.ViewerVotesA), deref(r.ViewerVotesB)
}

func shares(a, b int) (float64, float64) {
	total := a + b
	if total == 0 {
		return 0, 0
	}
	return float64(a) / float64(total), float64(b) / float64(total)
}

func deref(value *int) int {
	if value == nil || *value < 0 {
		return 0
	}
	return *value
}
