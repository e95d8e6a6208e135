package defaults

import (
	"github.com/ts4z/rungs/builtins"
	"github.com/ts4z/rungs/model"
)

// Catalog returns a private copy of the built-in demo games, safe to modify.
func Catalog() []builtins.DemoGame {
	games := make([]builtins.DemoGame, len(builtins.Games))
	for i, g := range builtins.Games {
		games[i] = builtins.DemoGame{Name: g.Name, Banner: g.Banner}
		for _, v := range g.Versions {
			games[i].Versions = append(games[i].Versions, builtins.DemoVersion{
				Name:  v.Name,
				Date:  v.Date,
				Ranks: cloneRanks(v.Ranks),
			})
		}
	}
	return games
}

func cloneRanks(ranks []*model.Rank) []*model.Rank {
	cpy := make([]*model.Rank, len(ranks))
	for i, r := range ranks {
		cpy[i] = r.Clone()
	}
	return cpy
}

// SiteConfig is the site configuration used when there isn't one stored.
func SiteConfig() *model.SiteConfig {
	return &model.SiteConfig{Name: "rungs"}
}
