package handlers

import (
	"net/http"

	"github.com/cloo-solutions/docuhub/internal/api"
	"github.com/cloo-solutions/docuhub/internal/api/middleware"
	"github.com/cloo-solutions/docuhub/internal/domain"
)

type MeResponse struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

// Me echoes the authenticated principal.
func Me(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		api.HandleError(w, domain.ErrInvalidToken)
		return
	}
	api.Success(w, http.StatusOK, MeResponse{Subject: p.Subject, Role: p.Role.String()})
}
