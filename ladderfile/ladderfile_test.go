package ladderfile

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ts4z/rungs/model"
)

func pct(f float64) *float64 {
	return &f
}

const sampleCSV = `rank,color,rank_badge,tier,tier_badge,percentile
Iron,#51484a,iron.png,IV,,0.010
Iron,#51484a,iron.png,III,,1.5%
# a comment
Bronze,#8c523a,,I,b1.png,
Challenger,#f4c874,,,,0.0002
Apex,#222,apex.png,,,
`

func TestReadCSV(t *testing.T) {
	ranks, err := Read(strings.NewReader(sampleCSV), CSV)
	if err != nil {
		t.Fatal(err)
	}
	want := []*model.Rank{
		{Name: "Iron", Color: "#51484a", Badge: "iron.png", Order: 0, Tiers: []*model.Tier{
			{Name: "IV", Percentile: pct(0.010), Order: 0},
			{Name: "III", Percentile: pct(0.015), Order: 1},
		}},
		{Name: "Bronze", Color: "#8c523a", Order: 1, Tiers: []*model.Tier{
			{Name: "I", Badge: "b1.png", Order: 0},
		}},
		{Name: "Challenger", Color: "#f4c874", Order: 2, Tiers: []*model.Tier{
			{Name: "", Percentile: pct(0.0002), Order: 0},
		}},
		{Name: "Apex", Color: "#222", Badge: "apex.png", Order: 3},
	}
	if !reflect.DeepEqual(ranks, want) {
		for i := range ranks {
			t.Logf("got rank %+v", ranks[i])
			for _, tr := range ranks[i].Tiers {
				t.Logf("  tier %+v %v", tr, tr.Percentile)
			}
		}
		t.Errorf("Read(CSV) mismatch")
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"bad header", "rank,colour,rank_badge,tier,tier_badge,percentile\n"},
		{"short row", "rank,color,rank_badge,tier,tier_badge,percentile\nIron,#000\n"},
		{"bad percentile", "rank,color,rank_badge,tier,tier_badge,percentile\nIron,,,IV,,lots\n"},
		{"missing rank", "rank,color,rank_badge,tier,tier_badge,percentile\n,,,IV,,0.1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Read(strings.NewReader(tt.in), CSV); err == nil {
				t.Errorf("no error")
			}
		})
	}
}

func TestPercentilesTakenVerbatim(t *testing.T) {
	in := "rank,color,rank_badge,tier,tier_badge,percentile\nIron,,,IV,,-0.1\nIron,,,III,,140%\n"
	ranks, err := Read(strings.NewReader(in), CSV)
	if err != nil {
		t.Fatal(err)
	}
	if got := ranks[0].Tiers; *got[0].Percentile != -0.1 || *got[1].Percentile != 1.4 {
		t.Errorf("percentiles = %v, %v", *got[0].Percentile, *got[1].Percentile)
	}
}

func TestRanksWithoutTiersSurvive(t *testing.T) {
	ranks := []*model.Rank{
		{Name: "Iron", Order: 0},
		{Name: "Gold", Order: 1, Tiers: []*model.Tier{{Name: "I", Percentile: pct(0.2)}}},
		{Name: "Master", Color: "#222", Order: 2},
	}
	var buf bytes.Buffer
	if err := Write(&buf, CSV, ranks); err != nil {
		t.Fatal(err)
	}
	back, err := Read(&buf, CSV)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, ranks) {
		t.Errorf("read back differs:\n%s", buf.String())
	}
}

func TestCSVKeepsLadderOrder(t *testing.T) {
	// A rank name that comes back later is a new rank, not a merge.
	in := "rank,color,rank_badge,tier,tier_badge,percentile\nA,,,1,,0.1\nB,,,1,,0.1\nA,,,2,,0.1\n"
	ranks, err := Read(strings.NewReader(in), CSV)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, r := range ranks {
		names = append(names, r.Name)
	}
	if !reflect.DeepEqual(names, []string{"A", "B", "A"}) {
		t.Errorf("ranks = %v", names)
	}
}

func TestWriteThenRead(t *testing.T) {
	ranks, err := Read(strings.NewReader(sampleCSV), CSV)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range []Format{CSV, YAML} {
		t.Run(f.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Write(&buf, f, ranks); err != nil {
				t.Fatal(err)
			}
			back, err := Read(&buf, f)
			if err != nil {
				t.Fatalf("reading back %s: %v", buf.String(), err)
			}
			if !reflect.DeepEqual(back, ranks) {
				t.Errorf("read back differs:\n%s", buf.String())
			}
		})
	}
}

func TestReadYAML(t *testing.T) {
	in := `
ranks:
  - name: Gold
    color: '#cd8837'
    tiers:
      - name: II
        percentile: 0.04
      - name: I
  - name: Master
    tiers: []
`
	ranks, err := Read(strings.NewReader(in), YAML)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranks) != 2 || len(ranks[0].Tiers) != 2 || len(ranks[1].Tiers) != 0 {
		t.Fatalf("ranks = %+v", ranks)
	}
	if *ranks[0].Tiers[0].Percentile != 0.04 || ranks[0].Tiers[1].Percentile != nil {
		t.Errorf("percentiles = %v, %v", ranks[0].Tiers[0].Percentile, ranks[0].Tiers[1].Percentile)
	}
	if ranks[1].Order != 1 || ranks[0].Tiers[1].Order != 1 {
		t.Errorf("orders not assigned")
	}
}

func TestReadYAMLRejectsUnknownFields(t *testing.T) {
	in := "ranks:\n  - name: Gold\n    colour: red\n"
	if _, err := Read(strings.NewReader(in), YAML); err == nil {
		t.Errorf("misspelled field accepted")
	}
}

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
		err  bool
	}{
		{"lol.csv", CSV, false},
		{"lol.CSV", CSV, false},
		{"dir/lol.yaml", YAML, false},
		{"lol.yml", YAML, false},
		{"lol.json", 0, true},
		{"lol", 0, true},
	}
	for _, tt := range tests {
		got, err := FormatForPath(tt.path)
		if tt.err {
			if !errors.Is(err, ErrUnknownFormat) {
				t.Errorf("FormatForPath(%q) err = %v", tt.path, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("FormatForPath(%q) = %v, %v", tt.path, got, err)
		}
	}
}
