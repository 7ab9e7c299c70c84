package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/cloo-solutions/docuhub/internal/api"
	"github.com/cloo-solutions/docuhub/internal/api/middleware"
	"github.com/cloo-solutions/docuhub/internal/domain"
	"github.com/cloo-solutions/docuhub/internal/service"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling to disk.
const multipartMemory = 8 << 20

type UploadService interface {
	RunUpload(ctx context.Context, in service.UploadInput) (*domain.PipelineResult, error)
}

type UploadHandler struct {
	svc      UploadService
	validate *validator.Validate
}

func NewUploadHandler(svc UploadService) *UploadHandler {
	return &UploadHandler{svc: svc, validate: validator.New()}
}

type uploadRequest struct {
	FileName string `validate:"required"`
	Question string `validate:"required,max=4000"`
}

// Upload answers a question about the uploaded document, using the caller's
// role to pick the prompt.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		api.HandleError(w, domain.ErrInvalidToken)
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		api.HandleError(w, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "file is required", err))
		return
	}
	defer file.Close()

	req := uploadRequest{
		FileName: header.Filename,
		Question: strings.TrimSpace(r.FormValue("question")),
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, validationError(err))
		return
	}

	result, err := h.svc.RunUpload(r.Context(), service.UploadInput{
		Body:     file,
		FileName: req.FileName,
		Question: req.Question,
		Role:     principal.Role.String(),
		OwnerID:  principal.Subject,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, api.AnswerResponse{GeneratedAnswer: result.Answer})
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid request", err)
	}

	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	if fe.Field() == "FileName" {
		field = "file"
	}
	switch fe.Tag() {
	case "required":
		if field == "question" {
			return domain.ErrEmptyQuestion
		}
		return domain.NewDomainError(domain.ErrCodeValidation, fmt.Sprintf("%s is required", field))
	case "max":
		return domain.NewDomainError(domain.ErrCodeValidation, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
	default:
		return domain.NewDomainError(domain.ErrCodeValidation, fmt.Sprintf("%s is invalid", field))
	}
}
