package config

import (
	"github.com/go-playground/validator/v10"

	"orgdirectory/internal/models"
)

var (
	// Shared dependencies used across the application
	SecretKey = []byte("secret")
	Validate  = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	// taskstatus accepts the declared task states only.
	_ = v.RegisterValidation("taskstatus", func(fl validator.FieldLevel) bool {
		return models.TaskStatus(fl.Field().String()).Valid()
	})
	return v
}
