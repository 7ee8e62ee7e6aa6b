// internal/scoring/levels.go
package scoring

// LevelInfo is derived from a total score against the fixed tier table. It is
// never stored; recompute it whenever the score changes.
type LevelInfo struct {
	Level         int    `json:"level"`
	Name          string `json:"name"`
	CurrentPoints int    `json:"currentPoints"`
	PointsToNext  int    `json:"pointsToNext"`
	Reward        string `json:"reward"`
}

type levelBand struct {
	level  int
	name   string
	min    int
	max    int // inclusive; -1 marks the unbounded top band
	reward string
}

// levelBands is the fixed ascending tier table. Lookup is a linear scan;
// the first band whose inclusive range contains the score wins.
var levelBands = []levelBand{
	{1, "Novato", 0, 100, "Pincel básico"},
	{2, "Aprendiz", 101, 250, "Paleta de colores"},
	{3, "Artista", 251, 500, "Pincel dorado"},
	{4, "Experto", 501, 1000, "Marco de retrato"},
	{5, "Maestro", 1001, -1, "Corona del lienzo"},
}

// CalculatePlayerLevel resolves totalScore to its level band. PointsToNext is
// bandMax - score + 1, and 0 for the unbounded top band.
func CalculatePlayerLevel(totalScore int) LevelInfo {
	for _, b := range levelBands {
		if totalScore < b.min {
			continue
		}
		if b.max >= 0 && totalScore > b.max {
			continue
		}
		info := LevelInfo{
			Level:         b.level,
			Name:          b.name,
			CurrentPoints: totalScore,
			Reward:        b.reward,
		}
		if b.max >= 0 {
			info.PointsToNext = b.max - totalScore + 1
		}
		return info
	}
	// Negative scores sit below the first band; clamp to it.
	first := levelBands[0]
	return LevelInfo{
		Level:         first.level,
		Name:          first.name,
		CurrentPoints: totalScore,
		PointsToNext:  first.max - totalScore + 1,
		Reward:        first.reward,
	}
}
