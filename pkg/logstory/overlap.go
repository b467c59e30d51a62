package logstory

import "github.com/logstory/logstory-go/pkg/logstory/rules"

// OverlapSide identifies one designated-group capture taking part in an overlap.
type OverlapSide struct {
	Rule  string `json:"rule"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Overlap reports two rules capturing intersecting spans of the same line.
type Overlap struct {
	A OverlapSide `json:"a"`
	B OverlapSide `json:"b"`
}

// FindOverlaps compares the designated-group spans of matches produced by
// different rules and returns every intersecting pair, in match order.
// rs must be the rule list the groups were produced from. Matches from the
// same rule never overlap each other and are not compared.
func FindOverlaps(groups []RuleMatchGroup, rs []rules.Rule) []Overlap {
	type span struct {
		ruleIndex int
		side      OverlapSide
	}

	var spans []span
	for _, g := range groups {
		for _, m := range g.Matches {
			if m.RuleIndex < 0 || m.RuleIndex >= len(rs) {
				continue
			}
			want := rs[m.RuleIndex].Group
			for _, grp := range m.Groups {
				if grp.Index != want {
					continue
				}
				spans = append(spans, span{
					ruleIndex: m.RuleIndex,
					side:      OverlapSide{Rule: m.RuleName, Text: grp.Text, Start: grp.Start, End: grp.End},
				})
			}
		}
	}

	var out []Overlap
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			a, b := spans[i], spans[j]
			if a.ruleIndex == b.ruleIndex {
				continue
			}
			if a.side.Start < b.side.End && b.side.Start < a.side.End {
				out = append(out, Overlap{A: a.side, B: b.side})
			}
		}
	}
	return out
}
