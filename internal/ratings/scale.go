// Package ratings defines the canonical ordered credit-rating scale shared by
// every engine. The scale is injected as data so portfolios using a coarser
// letter-only taxonomy (BBB instead of BBB+/BBB/BBB-) still resolve, while
// strings outside the scale are rejected rather than silently ranked.
package ratings

import "fmt"

// Scale is an ordered rating taxonomy, best rating first. Rank 0 is the best
// rating; larger ranks are worse.
type Scale struct {
	ordered              []string
	rank                 map[string]int
	investmentGradeFloor int
}

// DefaultOrder is the notched S&P-style scale. Letter-only grades are members
// of this scale, so coarse histories rank correctly against it.
var DefaultOrder = []string{
	"AAA",
	"AA+", "AA", "AA-",
	"A+", "A", "A-",
	"BBB+", "BBB", "BBB-",
	"BB+", "BB", "BB-",
	"B+", "B", "B-",
	"CCC+", "CCC", "CCC-",
	"CC", "C", "D",
}

// DefaultInvestmentGradeFloor is the worst rating still considered
// investment grade on the default scale.
const DefaultInvestmentGradeFloor = "BBB-"

// NewScale builds a scale from an ordered rating list (best first) and the
// worst rating still counted as investment grade.
func NewScale(ordered []string, investmentGradeFloor string) (*Scale, error) {
	if len(ordered) == 0 {
		return nil, fmt.Errorf("rating scale must not be empty")
	}
	rank := make(map[string]int, len(ordered))
	for i, r := range ordered {
		if _, dup := rank[r]; dup {
			return nil, fmt.Errorf("duplicate rating %q in scale", r)
		}
		rank[r] = i
	}
	floor, ok := rank[investmentGradeFloor]
	if !ok {
		return nil, fmt.Errorf("investment-grade floor %q not in scale", investmentGradeFloor)
	}
	cp := make([]string, len(ordered))
	copy(cp, ordered)
	return &Scale{ordered: cp, rank: rank, investmentGradeFloor: floor}, nil
}

// Default returns the standard notched scale with a BBB- investment-grade
// floor.
func Default() *Scale {
	s, err := NewScale(DefaultOrder, DefaultInvestmentGradeFloor)
	if err != nil {
		panic(err) // static table, cannot fail
	}
	return s
}

// Ratings returns the ordered rating list, best first.
func (s *Scale) Ratings() []string {
	cp := make([]string, len(s.ordered))
	copy(cp, s.ordered)
	return cp
}

// Len returns the number of ratings in the scale.
func (s *Scale) Len() int { return len(s.ordered) }

// Rank returns the ordinal position of a rating (0 = best). The second return
// is false for ratings outside the scale; callers must treat those as
// unrankable rather than assuming any position.
func (s *Scale) Rank(rating string) (int, bool) {
	r, ok := s.rank[rating]
	return r, ok
}

// Contains reports whether the rating belongs to the scale.
func (s *Scale) Contains(rating string) bool {
	_, ok := s.rank[rating]
	return ok
}

// IsInvestmentGrade reports whether the rating is at or above the
// investment-grade floor. Unknown ratings are never investment grade.
func (s *Scale) IsInvestmentGrade(rating string) bool {
	r, ok := s.rank[rating]
	return ok && r <= s.investmentGradeFloor
}

// Worse reports whether rating a is ordinally worse than rating b. Both must
// be members of the scale.
func (s *Scale) Worse(a, b string) (bool, error) {
	ra, ok := s.rank[a]
	if !ok {
		return false, fmt.Errorf("rating %q not in scale", a)
	}
	rb, ok := s.rank[b]
	if !ok {
		return false, fmt.Errorf("rating %q not in scale", b)
	}
	return ra > rb, nil
}
