package service

import "ptm-statistics/internal/domain/entity"

// ClassifyCompliance decides, month by month, whether a patient is standard.
//
// A patient is standard at month m when every month from the first visited
// month through m has a visit. The first gap ends the run for the rest of the
// year, even if visits resume later. Months before the first visit are never
// standard.
func ClassifyCompliance(months entity.MonthSet) entity.ComplianceResult {
	result := entity.ComplianceResult{FirstMonth: months.First()}
	if result.FirstMonth == 0 {
		return result
	}

	for m := result.FirstMonth; m <= entity.MonthsPerYear; m++ {
		if !months.Has(m) {
			break
		}
		result.Standard[m] = true
	}
	return result
}

// monthCounts is what a group of patients adds to one month's counters.
type monthCounts struct {
	total    int
	standard int
	male     int
	female   int
}

func (c monthCounts) isZero() bool {
	return c == monthCounts{}
}

func (c monthCounts) minus(o monthCounts) monthCounts {
	return monthCounts{
		total:    c.total - o.total,
		standard: c.standard - o.standard,
		male:     c.male - o.male,
		female:   c.female - o.female,
	}
}

// contribution holds monthCounts for months 1-12; index 0 is unused.
type contribution [entity.MonthsPerYear + 1]monthCounts

// contributionOf computes one patient's share of every month's counters.
// Both the full aggregation and the incremental cache path use it, so they
// cannot disagree.
func contributionOf(months entity.MonthSet, gender entity.Gender) contribution {
	var c contribution
	result := ClassifyCompliance(months)
	if result.FirstMonth == 0 {
		return c
	}

	for m := result.FirstMonth; m <= entity.MonthsPerYear; m++ {
		c[m].total = 1
		if !result.StandardAt(m) {
			continue
		}
		c[m].standard = 1
		switch gender {
		case entity.GenderMale:
			c[m].male = 1
		case entity.GenderFemale:
			c[m].female = 1
		}
	}
	return c
}

func (c *contribution) add(o contribution) {
	for m := 1; m <= entity.MonthsPerYear; m++ {
		c[m].total += o[m].total
		c[m].standard += o[m].standard
		c[m].male += o[m].male
		c[m].female += o[m].female
	}
}

func (c contribution) minus(o contribution) contribution {
	var d contribution
	for m := 1; m <= entity.MonthsPerYear; m++ {
		d[m] = c[m].minus(o[m])
	}
	return d
}

// applyTo adds the counts of month agg.Month and re-derives the dependent fields.
func (c contribution) applyTo(agg *entity.MonthlyAggregate) {
	if agg.Month < 1 || agg.Month > entity.MonthsPerYear {
		return
	}
	counts := c[agg.Month]
	agg.TotalPatients += counts.total
	agg.StandardPatients += counts.standard
	agg.MalePatients += counts.male
	agg.FemalePatients += counts.female
	agg.Recalculate()
}
