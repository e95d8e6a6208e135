// Package ladderfile reads and writes ladders as files, so they can be
// edited in a spreadsheet or a text editor and loaded with rungsadmin.
//
// Two formats are understood.  CSV has one row per tier:
//
//	rank,color,rank_badge,tier,tier_badge,percentile
//	Iron,#51484a,,IV,,0.010
//	Iron,#51484a,,III,,0.012
//
// Consecutive rows with the same rank name make up one rank.  Percentile is
// a fraction of the ranked population; "1.2%" is also accepted.  An empty
// percentile is unknown.
//
// YAML is the same data, nested:
//
//	ranks:
//	  - name: Iron
//	    color: '#51484a'
//	    tiers:
//	      - name: IV
//	        percentile: 0.01
package ladderfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ts4z/rungs/model"
)

type Format int

const (
	CSV Format = iota
	YAML
)

func (f Format) String() string {
	switch f {
	case CSV:
		return "csv"
	case YAML:
		return "yaml"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Header is the first row of a CSV ladder.
var Header = []string{"rank", "color", "rank_badge", "tier", "tier_badge", "percentile"}

var ErrUnknownFormat = errors.New("unknown ladder file format")

// ParseFormat accepts a format name ("csv", "yaml", "yml").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "csv":
		return CSV, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatForPath picks a format from a file name's extension.
func FormatForPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Read parses ranks, in ladder order.  IDs are left zero.
func Read(r io.Reader, f Format) ([]*model.Rank, error) {
	switch f {
	case CSV:
		return readCSV(r)
	case YAML:
		return readYAML(r)
	}
	return nil, ErrUnknownFormat
}

// Write renders ranks in the given format.  IDs are not written.
func Write(w io.Writer, f Format, ranks []*model.Rank) error {
	switch f {
	case CSV:
		return writeCSV(w, ranks)
	case YAML:
		return writeYAML(w, ranks)
	}
	return ErrUnknownFormat
}

func parsePercentile(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	scale := 1.0
	if strings.HasSuffix(s, "%") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
		scale = 100
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	f /= scale
	return &f, nil
}

func readCSV(r io.Reader) ([]*model.Rank, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("empty file")
	}
	for i, h := range Header {
		if strings.ToLower(strings.TrimSpace(rows[0][i])) != h {
			return nil, fmt.Errorf("column %d is %q, want %q", i+1, rows[0][i], h)
		}
	}

	ranks := []*model.Rank{}
	var cur *model.Rank
	for n, row := range rows[1:] {
		line := n + 2
		rankName := strings.TrimSpace(row[0])
		if rankName == "" {
			return nil, fmt.Errorf("line %d: missing rank name", line)
		}
		p, err := parsePercentile(row[5])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad percentile: %w", line, err)
		}
		if cur == nil || cur.Name != rankName {
			cur = &model.Rank{
				Name:  rankName,
				Color: strings.TrimSpace(row[1]),
				Badge: strings.TrimSpace(row[2]),
				Order: len(ranks),
			}
			ranks = append(ranks, cur)
		}
		if isBlank(row[3], row[4], row[5]) {
			// A rank with no tiers, such as an apex rank.
			continue
		}
		cur.Tiers = append(cur.Tiers, &model.Tier{
			Name:       strings.TrimSpace(row[3]),
			Badge:      strings.TrimSpace(row[4]),
			Percentile: p,
			Order:      len(cur.Tiers),
		})
	}
	return ranks, nil
}

func isBlank(fields ...string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func formatPercentile(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func writeCSV(w io.Writer, ranks []*model.Rank) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range ranks {
		if len(r.Tiers) == 0 {
			if err := cw.Write([]string{r.Name, r.Color, r.Badge, "", "", ""}); err != nil {
				return err
			}
			continue
		}
		for _, t := range r.Tiers {
			row := []string{r.Name, r.Color, r.Badge, t.Name, t.Badge, formatPercentile(t.Percentile)}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

type yamlTier struct {
	Name       string   `yaml:"name"`
	Badge      string   `yaml:"badge,omitempty"`
	Percentile *float64 `yaml:"percentile"`
}

type yamlRank struct {
	Name  string     `yaml:"name"`
	Color string     `yaml:"color,omitempty"`
	Badge string     `yaml:"badge,omitempty"`
	Tiers []yamlTier `yaml:"tiers"`
}

type yamlLadder struct {
	Ranks []yamlRank `yaml:"ranks"`
}

func readYAML(r io.Reader) ([]*model.Rank, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc yamlLadder
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	ranks := make([]*model.Rank, 0, len(doc.Ranks))
	for i, yr := range doc.Ranks {
		if yr.Name == "" {
			return nil, fmt.Errorf("rank %d: missing name", i+1)
		}
		r := &model.Rank{Name: yr.Name, Color: yr.Color, Badge: yr.Badge, Order: i}
		for j, yt := range yr.Tiers {
			r.Tiers = append(r.Tiers, &model.Tier{Name: yt.Name, Badge: yt.Badge, Percentile: yt.Percentile, Order: j})
		}
		ranks = append(ranks, r)
	}
	return ranks, nil
}

func writeYAML(w io.Writer, ranks []*model.Rank) error {
	doc := yamlLadder{Ranks: make([]yamlRank, 0, len(ranks))}
	for _, r := range ranks {
		yr := yamlRank{Name: r.Name, Color: r.Color, Badge: r.Badge, Tiers: []yamlTier{}}
		for _, t := range r.Tiers {
			yr.Tiers = append(yr.Tiers, yamlTier{Name: t.Name, Badge: t.Badge, Percentile: t.Percentile})
		}
		doc.Ranks = append(doc.Ranks, yr)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}
