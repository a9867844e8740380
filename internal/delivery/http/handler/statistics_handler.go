package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"ptm-statistics/internal/delivery/dto"
	"ptm-statistics/internal/domain/entity"
	"ptm-statistics/internal/usecase"
	"ptm-statistics/pkg/response"
	"ptm-statistics/pkg/validator"

	"github.com/gorilla/mux"
)

type StatisticsHandler struct {
	statisticsUsecase usecase.StatisticsUsecase
	validator         *validator.CustomValidator
}

func NewStatisticsHandler(statisticsUsecase usecase.StatisticsUsecase, validator *validator.CustomValidator) *StatisticsHandler {
	return &StatisticsHandler{
		statisticsUsecase: statisticsUsecase,
		validator:         validator,
	}
}

// GetYearStatistics handles GET /statistics/{puskesmasId}/{disease}/{year}
func (h *StatisticsHandler) GetYearStatistics(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	puskesmasID, err := strconv.Atoi(vars["puskesmasId"])
	if err != nil {
		response.BadRequest(w, "Invalid puskesmas ID")
		return
	}
	year, err := strconv.Atoi(vars["year"])
	if err != nil {
		response.BadRequest(w, "Invalid year")
		return
	}

	req := dto.YearStatisticsRequest{
		PuskesmasID: puskesmasID,
		Disease:     strings.ToLower(vars["disease"]),
		Year:        year,
	}
	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	stats, err := h.statisticsUsecase.GetYearStatistics(r.Context(), &req)
	if err != nil {
		writeStatisticsError(w, err, "Failed to get statistics")
		return
	}

	response.Success(w, http.StatusOK, "Statistics retrieved successfully", stats)
}

// GetMonthStatistic handles GET /statistics/{puskesmasId}/{disease}/{year}/{month}
func (h *StatisticsHandler) GetMonthStatistic(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	puskesmasID, err := strconv.Atoi(vars["puskesmasId"])
	if err != nil {
		response.BadRequest(w, "Invalid puskesmas ID")
		return
	}
	year, err := strconv.Atoi(vars["year"])
	if err != nil {
		response.BadRequest(w, "Invalid year")
		return
	}
	month, err := strconv.Atoi(vars["month"])
	if err != nil {
		response.BadRequest(w, "Invalid month")
		return
	}

	req := dto.MonthStatisticRequest{
		PuskesmasID: puskesmasID,
		Disease:     strings.ToLower(vars["disease"]),
		Year:        year,
		Month:       month,
	}
	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	stat, err := h.statisticsUsecase.GetMonthStatistic(r.Context(), &req)
	if err != nil {
		writeStatisticsError(w, err, "Failed to get statistic")
		return
	}

	response.Success(w, http.StatusOK, "Statistic retrieved successfully", stat)
}

// GetDashboard handles GET /dashboard?disease=ht|dm|all&year=&month=&puskesmas_ids=1,2
func (h *StatisticsHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	req := dto.DashboardRequest{
		Disease: strings.ToLower(query.Get("disease")),
	}
	if req.Disease == "" {
		req.Disease = entity.DiseaseAll
	}

	year, err := strconv.Atoi(query.Get("year"))
	if err != nil {
		response.BadRequest(w, "Invalid year")
		return
	}
	req.Year = year

	if raw := query.Get("month"); raw != "" {
		month, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(w, "Invalid month")
			return
		}
		req.Month = &month
	}

	if raw := query.Get("puskesmas_ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				response.BadRequest(w, "Invalid puskesmas_ids")
				return
			}
			req.PuskesmasIDs = append(req.PuskesmasIDs, id)
		}
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	dashboard, err := h.statisticsUsecase.GetDashboard(r.Context(), &req)
	if err != nil {
		writeStatisticsError(w, err, "Failed to get dashboard")
		return
	}

	response.Success(w, http.StatusOK, "Dashboard retrieved successfully", dashboard)
}

// RecordExamination handles POST /examinations
func (h *StatisticsHandler) RecordExamination(w http.ResponseWriter, r *http.Request) {
	var req dto.RecordExaminationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	exam, err := h.statisticsUsecase.RecordExamination(r.Context(), &req)
	if err != nil {
		writeStatisticsError(w, err, "Failed to record examination")
		return
	}

	response.Success(w, http.StatusCreated, "Examination recorded successfully", exam)
}

// SetTarget handles PUT /targets
func (h *StatisticsHandler) SetTarget(w http.ResponseWriter, r *http.Request) {
	var req dto.SetTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	target, err := h.statisticsUsecase.SetTarget(r.Context(), &req)
	if err != nil {
		writeStatisticsError(w, err, "Failed to set target")
		return
	}

	response.Success(w, http.StatusOK, "Target updated successfully", target)
}

// RebuildStatistics handles POST /statistics/rebuild
func (h *StatisticsHandler) RebuildStatistics(w http.ResponseWriter, r *http.Request) {
	var req dto.RebuildStatisticsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	report, err := h.statisticsUsecase.RebuildStatistics(r.Context(), &req)
	if err != nil {
		if report == nil {
			writeStatisticsError(w, err, "Failed to rebuild statistics")
			return
		}

		status := http.StatusInternalServerError
		if errors.Is(err, entity.ErrDataSourceUnavailable) {
			status = http.StatusServiceUnavailable
		}
		response.ErrorWithData(w, status, "Statistics rebuild stopped before completion", report)
		return
	}

	response.Success(w, http.StatusOK, "Statistics rebuilt successfully", report)
}

func writeStatisticsError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, entity.ErrInvalidPeriod),
		errors.Is(err, entity.ErrInvalidDiseaseType),
		errors.Is(err, usecase.ErrInvalidExaminationDate):
		response.BadRequest(w, err.Error())
	case errors.Is(err, usecase.ErrPatientNotEnrolled):
		response.Error(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, usecase.ErrPuskesmasNotFound):
		response.NotFound(w, "Puskesmas not found")
	case errors.Is(err, entity.ErrPatientNotFound):
		response.NotFound(w, "Patient not found")
	case errors.Is(err, entity.ErrDataSourceUnavailable):
		response.ServiceUnavailable(w, "Statistics data source unavailable")
	default:
		response.InternalServerError(w, fallback)
	}
}
