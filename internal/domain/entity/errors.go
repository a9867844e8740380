package entity

import "errors"

var (
	// ErrDataSourceUnavailable means the visit index or target source could not be read.
	// Aggregation never substitutes zeros for it.
	ErrDataSourceUnavailable = errors.New("statistics data source unavailable")
	ErrInvalidPeriod         = errors.New("invalid statistics period")
	ErrInvalidDiseaseType    = errors.New("invalid disease type")
	ErrPatientNotFound       = errors.New("patient not found")
	// ErrStatisticNotFound is a cache miss; callers treat it as zero data.
	ErrStatisticNotFound = errors.New("statistic not found")
)
