package rules

import "github.com/roach88/narrator/internal/domain"

// PickTopByChannel keeps the highest-scoring output per channel. Ties go to
// the output seen first. chosen preserves input order; dropped holds every
// other output, also in input order.
func PickTopByChannel(outputs []domain.DispatchOutput) (chosen, dropped []domain.DispatchOutput) {
	best := make(map[domain.Channel]int, len(domain.Channels))
	for i, o := range outputs {
		j, seen := best[o.Channel]
		if !seen || o.Score > outputs[j].Score {
			best[o.Channel] = i
		}
	}
	for i, o := range outputs {
		if best[o.Channel] == i {
			chosen = append(chosen, o)
		} else {
			dropped = append(dropped, o)
		}
	}
	return chosen, dropped
}
