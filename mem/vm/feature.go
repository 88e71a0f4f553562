package vm

import (
	"fmt"
	"sort"
)

// Feature is an optional architecture feature.
type Feature uint8

// The features the translation pipeline consults.
const (
	FeatLVA Feature = iota
	FeatLPA
	FeatLPA2
	FeatTTST
	FeatPAN
	FeatPAN3
	FeatHAFDBS
	FeatXS
	FeatMTE2
	FeatTME
	FeatSVE
	FeatLS64
	FeatRME
	FeatMEC
	FeatS1PIE
	FeatS2PIE
	FeatHDBSS
	FeatSEL2
	FeatMPAM
	FeatMPAMv0p1
	FeatMPAMv1p1
)

var featureNames = map[Feature]string{
	FeatLVA:      "FEAT_LVA",
	FeatLPA:      "FEAT_LPA",
	FeatLPA2:     "FEAT_LPA2",
	FeatTTST:     "FEAT_TTST",
	FeatPAN:      "FEAT_PAN",
	FeatPAN3:     "FEAT_PAN3",
	FeatHAFDBS:   "FEAT_HAFDBS",
	FeatXS:       "FEAT_XS",
	FeatMTE2:     "FEAT_MTE2",
	FeatTME:      "FEAT_TME",
	FeatSVE:      "FEAT_SVE",
	FeatLS64:     "FEAT_LS64",
	FeatRME:      "FEAT_RME",
	FeatMEC:      "FEAT_MEC",
	FeatS1PIE:    "FEAT_S1PIE",
	FeatS2PIE:    "FEAT_S2PIE",
	FeatHDBSS:    "FEAT_HDBSS",
	FeatSEL2:     "FEAT_SEL2",
	FeatMPAM:     "FEAT_MPAM",
	FeatMPAMv0p1: "FEAT_MPAMv0p1",
	FeatMPAMv1p1: "FEAT_MPAMv1p1",
}

func (f Feature) String() string {
	if n, ok := featureNames[f]; ok {
		return n
	}

	return fmt.Sprintf("Feature(%d)", uint8(f))
}

// ParseFeature returns the feature with the given FEAT_ name.
func ParseFeature(name string) (Feature, error) {
	for f, n := range featureNames {
		if n == name {
			return f, nil
		}
	}

	return 0, fmt.Errorf("unknown feature %q", name)
}

// FeatureSet is the set of features an implementation provides.
type FeatureSet map[Feature]struct{}

// NewFeatureSet returns a set holding the features.
func NewFeatureSet(features ...Feature) FeatureSet {
	s := make(FeatureSet, len(features))
	for _, f := range features {
		s[f] = struct{}{}
	}

	return s
}

// Has reports whether the feature is implemented.
func (s FeatureSet) Has(f Feature) bool {
	_, ok := s[f]
	return ok
}

// Names returns the sorted names of the features in the set.
func (s FeatureSet) Names() []string {
	names := make([]string, 0, len(s))
	for f := range s {
		names = append(names, f.String())
	}

	sort.Strings(names)

	return names
}
