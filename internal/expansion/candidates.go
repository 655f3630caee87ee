package expansion

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/branch-insights/internal/stats"
)

//go:embed candidates.yaml
var defaultCandidates []byte

// Location is one curated candidate location.
type Location struct {
	Area             string `yaml:"area" json:"area"`
	Governorate      string `yaml:"governorate" json:"governorate"`
	Population       int    `yaml:"population" json:"population"`
	UniversityNearby bool   `yaml:"university_nearby" json:"university_nearby"`
	FootTrafficTier  int    `yaml:"foot_traffic_tier" json:"foot_traffic_tier"`
	RentTier         int    `yaml:"rent_tier" json:"rent_tier"`
	CafeDensity      string `yaml:"cafe_density" json:"cafe_density"` // low, medium, high
	ChainPresent     bool   `yaml:"chain_present" json:"-"`
}

// Candidate is a scored location.
type Candidate struct {
	Location
	Attractiveness float64  `json:"attractiveness"`
	ArchetypeFit   float64  `json:"archetype_fit"`
	Score          float64  `json:"score"`
	Pros           []string `json:"pros"`
	Cons           []string `json:"cons"`
}

// LoadLocations reads a candidate list. An empty path loads the embedded list.
func LoadLocations(path string) ([]Location, error) {
	data := defaultCandidates
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "expansion: read candidates %s", path)
		}
	}

	var wrapper struct {
		Areas []Location `yaml:"areas"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "expansion: parse candidates")
	}

	var errs []string
	for i, a := range wrapper.Areas {
		if strings.TrimSpace(a.Area) == "" {
			errs = append(errs, fmt.Sprintf("area %d: name is required", i+1))
		}
		if a.FootTrafficTier < 1 || a.FootTrafficTier > 5 || a.RentTier < 1 || a.RentTier > 5 {
			errs = append(errs, fmt.Sprintf("%s: tiers must be between 1 and 5", a.Area))
		}
		if _, ok := cafeScores[a.CafeDensity]; !ok {
			errs = append(errs, fmt.Sprintf("%s: cafe_density %q must be low, medium or high", a.Area, a.CafeDensity))
		}
		if a.Population < 0 {
			errs = append(errs, fmt.Sprintf("%s: population must be >= 0", a.Area))
		}
	}
	if len(errs) > 0 {
		return nil, eris.Errorf("expansion: invalid candidates: %s", strings.Join(errs, "; "))
	}
	return wrapper.Areas, nil
}

// Medium density is best: the market exists but is not saturated.
var cafeScores = map[string]float64{"low": 30, "medium": 50, "high": 35}

// attractiveness rates an area on its own merits, 0 to 100.
func attractiveness(a Location) float64 {
	pop := math.Min(float64(a.Population)/5000, 100)
	uni := 0.0
	if a.UniversityNearby {
		uni = 15
	}
	foot := float64(a.FootTrafficTier) * 20
	rent := float64(a.RentTier) * 5
	v := pop*0.30 + uni + foot*0.25 + cafeScores[a.CafeDensity]*0.20 - rent*0.10
	return stats.Clamp(v, 0, 100)
}

// archetypeFit rates how well an area's rent level matches the archetype's
// ticket level, with a bonus for beverage-led archetypes near universities.
func archetypeFit(a Location, ticketTier int, beveragePct float64) float64 {
	v := 100 - 20*math.Abs(float64(a.RentTier-ticketTier))
	if beveragePct >= 20 && a.UniversityNearby {
		v += 10
	}
	return stats.Clamp(v, 0, 100)
}

// ticketTier maps an average-ticket score onto the 1-5 rent scale.
func ticketTier(score float64) int {
	t := int(math.Ceil(score / 20))
	return max(1, min(5, t))
}

func rationale(a Location) (pros, cons []string) {
	pros, cons = []string{}, []string{}
	switch {
	case a.Population >= 100000:
		pros = append(pros, fmt.Sprintf("Large population (%d)", a.Population))
	case a.Population >= 50000:
		pros = append(pros, fmt.Sprintf("Mid-size population (%d)", a.Population))
	default:
		cons = append(cons, fmt.Sprintf("Small population (%d)", a.Population))
	}
	if a.UniversityNearby {
		pros = append(pros, "University nearby (young demographic)")
	}
	if a.FootTrafficTier >= 4 {
		pros = append(pros, "High foot traffic")
	}
	if a.RentTier >= 4 {
		cons = append(cons, fmt.Sprintf("High commercial rent (tier %d/5)", a.RentTier))
	}
	switch a.CafeDensity {
	case "high":
		cons = append(cons, "High cafe density, competitive market")
	case "medium":
		pros = append(pros, "Moderate cafe scene, market exists but is not saturated")
	default:
		pros = append(pros, "Low cafe density, first-mover opportunity")
	}
	return pros, cons
}

// rankCandidates scores every area without a branch against the archetype,
// best first.
func rankCandidates(areas []Location, arch *Archetype, limit int) []Candidate {
	tier := ticketTier(arch.AvgTicketScore)
	out := []Candidate{}
	for _, a := range areas {
		if a.ChainPresent {
			continue
		}
		c := Candidate{
			Location:       a,
			Attractiveness: stats.Round(attractiveness(a), 2),
			ArchetypeFit:   stats.Round(archetypeFit(a, tier, arch.BeveragePct), 2),
		}
		c.Score = stats.Round(0.7*attractiveness(a)+0.3*archetypeFit(a, tier, arch.BeveragePct), 2)
		c.Pros, c.Cons = rationale(a)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Area < out[j].Area
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
