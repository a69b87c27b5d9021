package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// FieldError is one entry of a validation failure body
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// client-facing messages keyed by json field
var fieldMessages = map[string]string{
	"name":     "name is required",
	"email":    "valid email is required",
	"password": "password must be at least 4 chars",
	"phone":    "phone is required",
	"otp":      "otp is required",
	"role":     "role must be user or admin",
}

func jsonFieldName(structField string) string {
	switch structField {
	case "OTP":
		return "otp"
	case "FirstName":
		return "firstName"
	}
	return strings.ToLower(structField[:1]) + structField[1:]
}

func fieldErrors(verrs validator.ValidationErrors) []FieldError {
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := jsonFieldName(fe.Field())
		msg, ok := fieldMessages[field]
		if !ok {
			msg = field + " is invalid"
		}
		out = append(out, FieldError{Field: field, Message: msg})
	}
	return out
}

// bindJSON binds the body into req and answers 400 on failure. It reports
// whether the handler should continue.
func bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}
	_ = c.Error(err).SetType(gin.ErrorTypeBind)

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"message": "Validation failed",
			"errors":  fieldErrors(verrs),
		})
		return false
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
	return false
}
