package game

import (
	"sort"
)

type Standing struct {
	Name  string
	Score int
}

// Standings orders scores from highest to lowest. Equal scores are ordered by
// name so the result never depends on map iteration order.
func Standings(scores map[string]int) []Standing {
	standings := make([]Standing, 0, len(scores))
	for name, score := range scores {
		standings = append(standings, Standing{
			Name:  name,
			Score: score,
		})
	}

	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Score != standings[j].Score {
			return standings[i].Score > standings[j].Score
		}
		return standings[i].Name < standings[j].Name
	})

	return standings
}

// Leader returns the first entry of Standings.
func Leader(scores map[string]int) (Standing, bool) {
	standings := Standings(scores)
	if len(standings) == 0 {
		return Standing{}, false
	}
	return standings[0], true
}
