package entity

import (
	"fmt"
	"strings"
)

// DiseaseType identifies the chronic disease program a statistic belongs to.
type DiseaseType string

const (
	DiseaseHypertension DiseaseType = "ht"
	DiseaseDiabetes     DiseaseType = "dm"
)

// DiseaseAll is accepted at the HTTP boundary for combined dashboards only.
// It is never a valid key for a statistic row.
const DiseaseAll = "all"

// DiseaseTypes lists every supported disease in a fixed order.
func DiseaseTypes() []DiseaseType {
	return []DiseaseType{DiseaseHypertension, DiseaseDiabetes}
}

// ParseDiseaseType converts boundary input into a DiseaseType.
func ParseDiseaseType(s string) (DiseaseType, error) {
	switch d := DiseaseType(strings.ToLower(strings.TrimSpace(s))); d {
	case DiseaseHypertension, DiseaseDiabetes:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDiseaseType, s)
	}
}

func (d DiseaseType) IsValid() bool {
	return d == DiseaseHypertension || d == DiseaseDiabetes
}

// ExaminationTable returns the table holding this disease's examinations.
func (d DiseaseType) ExaminationTable() string {
	return string(d) + "_examinations"
}

func (d DiseaseType) String() string {
	return string(d)
}
