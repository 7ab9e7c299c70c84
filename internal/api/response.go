package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/phuslu/log"

	"github.com/cloo-solutions/docuhub/internal/domain"
)

// SuccessResponse wraps successful API responses
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// DetailResponse is the error body of every failed request.
type DetailResponse struct {
	Detail string `json:"detail"`
	Stage  string `json:"stage,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// AnswerResponse is the body of a successful upload.
type AnswerResponse struct {
	GeneratedAnswer string `json:"generated_answer"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Warn().Err(err).Msg("failed to encode response")
		}
	}
}

// Success writes a successful JSON response
func Success(w http.ResponseWriter, status int, data interface{}) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes an error JSON response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, DetailResponse{Detail: message})
}

// PipelineErrorToHTTP maps a pipeline failure to a status code. Timeouts win
// over the error kind.
func PipelineErrorToHTTP(pe *domain.PipelineError) int {
	if pe.Timeout {
		return http.StatusGatewayTimeout
	}
	switch pe.Kind {
	case domain.KindUnsupportedType:
		return http.StatusUnsupportedMediaType
	case domain.KindUnknownRole:
		return http.StatusBadRequest
	case domain.KindExtraction:
		return http.StatusUnprocessableEntity
	case domain.KindIndexing, domain.KindRetrieval:
		return http.StatusServiceUnavailable
	case domain.KindGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DomainErrorToHTTP maps domain errors to HTTP status codes
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if pe, ok := domain.AsPipelineError(err); ok {
		return PipelineErrorToHTTP(pe)
	}

	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError
	}

	switch domainErr.Code {
	case domain.ErrCodeValidation:
		return http.StatusBadRequest
	case domain.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case domain.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes an appropriate error response based on the error type.
// Pipeline failures expose their message, stage and kind but never the cause.
func HandleError(w http.ResponseWriter, err error) {
	status := DomainErrorToHTTP(err)

	if pe, ok := domain.AsPipelineError(err); ok {
		JSON(w, status, DetailResponse{
			Detail: pe.Message,
			Stage:  string(pe.Stage),
			Kind:   string(pe.Kind),
		})
		return
	}

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		JSON(w, status, DetailResponse{Detail: domainErr.Message})
		return
	}

	log.Error().Err(err).Msg("unhandled error")
	Error(w, status, "internal server error")
}
