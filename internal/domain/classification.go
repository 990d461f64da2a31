package domain

// Material is the three-way decision the classifier produces for one deposit.
type Material string

const (
	MaterialPlastic    Material = "PLASTIC"
	MaterialNonPlastic Material = "NON_PLASTIC" // metal cans
	MaterialRejected   Material = "REJECTED"
)

// Points awards credited to the customer for a material.
func (m Material) Points() int {
	switch m {
	case MaterialPlastic:
		return 2
	case MaterialNonPlastic:
		return 1
	default:
		return 0
	}
}

// DetectedLabel is one tag returned by the label-detection backend.
// Confidence is normalized to [0,1].
type DetectedLabel struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"score"`
}

// LabelSet is the label list for one image, in the order the backend returned it.
type LabelSet []DetectedLabel

// Top returns at most n labels from the head of the set.
func (ls LabelSet) Top(n int) LabelSet {
	if len(ls) <= n {
		return ls
	}
	return ls[:n]
}

type ClassificationVerdict struct {
	Material   Material `json:"material_type"`
	Confidence float64  `json:"confidence"`
}

func (v ClassificationVerdict) Accepted() bool {
	return v.Material == MaterialPlastic || v.Material == MaterialNonPlastic
}

type LabelOutcome string

const (
	OutcomeAccepted LabelOutcome = "accepted"
	OutcomeRejected LabelOutcome = "rejected"
	OutcomeUnknown  LabelOutcome = "unknown"
)

// LabelDecision records how a single label was judged, for diagnostics only.
type LabelDecision struct {
	Name       string       `json:"name"`
	Confidence float64      `json:"confidence"`
	Outcome    LabelOutcome `json:"outcome"`
}
