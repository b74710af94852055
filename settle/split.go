package settle

import "github.com/voblegame/voble/models"

// Split divides a prize pool among the winner ranks by basis-point
// weights. Each rank gets the floored share; the integer remainder goes
// to rank one, so the returned amounts always sum to exactly total.
func Split(total uint64, weights [models.TopWinnersCount]uint16) [models.TopWinnersCount]uint64 {
	var out [models.TopWinnersCount]uint64
	if total == 0 {
		return out
	}
	var distributed uint64
	for i, w := range weights {
		out[i] = total * uint64(w) / models.BasisPointsTotal
		distributed += out[i]
	}
	out[0] += total - distributed
	return out
}
