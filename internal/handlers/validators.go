package handlers

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/northfin/recon_backend/internal/core/domain"
)

// Custom binding validators shared by the request DTOs.
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("discrepancytype", func(fl validator.FieldLevel) bool {
			return domain.DiscrepancyType(fl.Field().String()).IsValid()
		})
	}
}
