package domain

// Learning weight category names. The set is fixed; only the weights move.
const (
	CategoryWalletSignal     = "wallet_signal"
	CategoryTokenSafety      = "token_safety"
	CategoryMarketConditions = "market_conditions"
	CategorySocialSignals    = "social_signals"
	CategoryEntryQuality     = "entry_quality"
)

// WeightCategories lists categories in canonical order.
var WeightCategories = []string{
	CategoryWalletSignal,
	CategoryTokenSafety,
	CategoryMarketConditions,
	CategorySocialSignals,
	CategoryEntryQuality,
}

// CategoryWeight is one adaptive weight with its baseline and lock.
type CategoryWeight struct {
	Weight     float64 `json:"weight"`
	Baseline   float64 `json:"baseline"`
	Locked     bool    `json:"locked"`
	Predictive float64 `json:"predictive"` // last observed correlation with wins
}

// LearningWeights is the full weight vector. Invariant: weights sum to 100.
type LearningWeights struct {
	Categories map[string]*CategoryWeight `json:"categories"`
}

// DefaultWeights returns the baseline vector.
func DefaultWeights() *LearningWeights {
	baselines := map[string]float64{
		CategoryWalletSignal:     30,
		CategoryTokenSafety:      20,
		CategoryMarketConditions: 20,
		CategorySocialSignals:    15,
		CategoryEntryQuality:     15,
	}
	w := &LearningWeights{Categories: make(map[string]*CategoryWeight, len(baselines))}
	for name, b := range baselines {
		w.Categories[name] = &CategoryWeight{Weight: b, Baseline: b}
	}
	return w
}

// Sum returns the total of all weights.
func (w *LearningWeights) Sum() float64 {
	var total float64
	for _, c := range w.Categories {
		total += c.Weight
	}
	return total
}

// Clone returns a deep copy.
func (w *LearningWeights) Clone() *LearningWeights {
	out := &LearningWeights{Categories: make(map[string]*CategoryWeight, len(w.Categories))}
	for name, c := range w.Categories {
		cc := *c
		out.Categories[name] = &cc
	}
	return out
}

type PatternKind string

const (
	PatternWin    PatternKind = "WIN"
	PatternDanger PatternKind = "DANGER"
)

// LearningPattern is a mined feature-combination summary. Patterns are
// operator-facing artifacts; they never feed back into admission.
type LearningPattern struct {
	Kind        PatternKind `json:"kind"`
	Features    string      `json:"features"`
	Occurrences int         `json:"occurrences"`
	WinRate     float64     `json:"win_rate"`
	AvgReturn   float64     `json:"avg_return_pct"`
}
