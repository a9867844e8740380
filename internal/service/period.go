package service

import (
	"fmt"

	"ptm-statistics/internal/domain/entity"
)

// PeriodPolicy bounds the years the engine accepts.
type PeriodPolicy struct {
	MinYear int
	MaxYear int
}

func (p PeriodPolicy) ValidateYear(year int) error {
	if year < p.MinYear || year > p.MaxYear {
		return fmt.Errorf("%w: year %d outside %d-%d", entity.ErrInvalidPeriod, year, p.MinYear, p.MaxYear)
	}
	return nil
}

func (p PeriodPolicy) ValidateMonth(year, month int) error {
	if err := p.ValidateYear(year); err != nil {
		return err
	}
	if month < 1 || month > entity.MonthsPerYear {
		return fmt.Errorf("%w: month %d", entity.ErrInvalidPeriod, month)
	}
	return nil
}

func validateDisease(disease entity.DiseaseType) error {
	if !disease.IsValid() {
		return fmt.Errorf("%w: %q", entity.ErrInvalidDiseaseType, string(disease))
	}
	return nil
}

// unavailable marks err as a data source failure while keeping it inspectable.
func unavailable(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", entity.ErrDataSourceUnavailable, what, err)
}
