package builtins

import (
	"time"

	"github.com/ts4z/rungs/model"
)

// DemoVersion is one version of a demo game, with its ladder lowest rank
// first.  IDs are left zero; storage assigns them.
type DemoVersion struct {
	Name  string
	Date  time.Time
	Ranks []*model.Rank
}

type DemoGame struct {
	Name     string
	Banner   string
	Versions []DemoVersion
}

var (
	numbered3 = []string{"1", "2", "3"}
	roman3    = []string{"III", "II", "I"}
	roman4    = []string{"IV", "III", "II", "I"}
	single    = []string{""}
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// rank builds a rank whose tiers are named by names and weighted by pcts,
// which must be the same length.  Percentiles are fractions of the whole
// ranked population.
func rank(name, color string, names []string, pcts ...float64) *model.Rank {
	r := &model.Rank{Name: name, Color: color}
	for i, p := range pcts {
		p := p
		r.Tiers = append(r.Tiers, &model.Tier{Name: names[i], Percentile: &p, Order: i})
	}
	return r
}

// Games is demo data for running without a database.  The numbers are
// plausible, not authoritative.
var Games = []DemoGame{
	{
		Name: "League of Legends",
		Versions: []DemoVersion{
			{
				Name: "Season 2025",
				Date: day(2025, time.January, 9),
				Ranks: []*model.Rank{
					rank("Iron", "#51484a", roman4, 0.010, 0.012, 0.015, 0.017),
					rank("Bronze", "#8c523a", roman4, 0.035, 0.037, 0.035, 0.036),
					rank("Silver", "#80989d", roman4, 0.045, 0.043, 0.040, 0.039),
					rank("Gold", "#cd8837", roman4, 0.048, 0.042, 0.038, 0.035),
					rank("Platinum", "#4e9996", roman4, 0.041, 0.035, 0.030, 0.027),
					rank("Emerald", "#2ea96f", roman4, 0.043, 0.032, 0.025, 0.020),
					rank("Diamond", "#576bce", roman4, 0.018, 0.010, 0.006, 0.005),
					rank("Master", "#9d48e0", single, 0.0055),
					rank("Grandmaster", "#cd4545", single, 0.0004),
					rank("Challenger", "#f4c874", single, 0.0001),
				},
			},
			{
				Name: "Season 2024",
				Date: day(2024, time.January, 10),
				Ranks: []*model.Rank{
					rank("Iron", "#51484a", roman4, 0.008, 0.010, 0.013, 0.016),
					rank("Bronze", "#8c523a", roman4, 0.032, 0.036, 0.036, 0.037),
					rank("Silver", "#80989d", roman4, 0.047, 0.045, 0.041, 0.040),
					rank("Gold", "#cd8837", roman4, 0.050, 0.043, 0.038, 0.034),
					rank("Platinum", "#4e9996", roman4, 0.043, 0.036, 0.031, 0.027),
					rank("Emerald", "#2ea96f", roman4, 0.040, 0.030, 0.024, 0.019),
					rank("Diamond", "#576bce", roman4, 0.017, 0.010, 0.006, 0.005),
					rank("Master", "#9d48e0", single, 0.0057),
					rank("Grandmaster", "#cd4545", single, 0.0004),
					rank("Challenger", "#f4c874", single, 0.0001),
				},
			},
		},
	},
	{
		Name: "Valorant",
		Versions: []DemoVersion{
			{
				Name: "Episode 9",
				Date: day(2024, time.June, 25),
				Ranks: []*model.Rank{
					rank("Iron", "#4a4a4a", numbered3, 0.006, 0.013, 0.027),
					rank("Bronze", "#a5855d", numbered3, 0.045, 0.055, 0.067),
					rank("Silver", "#bbc2c2", numbered3, 0.073, 0.075, 0.072),
					rank("Gold", "#eccf56", numbered3, 0.072, 0.066, 0.060),
					rank("Platinum", "#59a9b6", numbered3, 0.055, 0.046, 0.039),
					rank("Diamond", "#b489c4", numbered3, 0.035, 0.026, 0.019),
					rank("Ascendant", "#2a9d5d", numbered3, 0.015, 0.011, 0.008),
					rank("Immortal", "#bb3d65", numbered3, 0.005, 0.0025, 0.0020),
					rank("Radiant", "#ffffaa", single, 0.0005),
				},
			},
		},
	},
	{
		Name: "Rocket League",
		Versions: []DemoVersion{
			{
				Name: "Season 14",
				Date: day(2024, time.March, 6),
				Ranks: []*model.Rank{
					rank("Bronze", "#a0672c", roman3, 0.001, 0.003, 0.008),
					rank("Silver", "#a9b5c1", roman3, 0.017, 0.028, 0.040),
					rank("Gold", "#d8a02e", roman3, 0.056, 0.068, 0.077),
					rank("Platinum", "#46c0e3", roman3, 0.082, 0.081, 0.078),
					rank("Diamond", "#3e6ed8", roman3, 0.081, 0.070, 0.058),
					rank("Champion", "#9a5ddb", roman3, 0.066, 0.040, 0.024),
					rank("Grand Champion", "#d23a3a", roman3, 0.018, 0.009, 0.005),
					rank("Supersonic Legend", "#f0f0f0", single, 0.003),
				},
			},
		},
	},
}
