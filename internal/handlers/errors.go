package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/chepyr/task-store/internal/models"
)

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type apiError struct {
	Code    int          `json:"-"`
	Message string       `json:"error"`
	Details []fieldError `json:"details,omitempty"`
}

func newAPIError(code int, message string) apiError {
	return apiError{
		Code:    code,
		Message: message,
	}
}

func (e apiError) Error() string {
	return e.Message
}

func abort(c *gin.Context, err apiError) {
	c.AbortWithStatusJSON(err.Code, err)
}

func newStatusTextError(status int) apiError {
	return newAPIError(status, http.StatusText(status))
}

func newValidationError(details ...fieldError) apiError {
	err := newAPIError(http.StatusUnprocessableEntity, "validation failed")
	err.Details = details
	return err
}

func newNotFoundError(message string) apiError {
	return newAPIError(http.StatusNotFound, message)
}

var errTaskNotFound = newNotFoundError("Task not found")

// bindError turns a ShouldBindJSON failure into a client error with
// per-field detail where it can be recovered.
func bindError(err error) apiError {
	var (
		verrs     validator.ValidationErrors
		typeErr   *json.UnmarshalTypeError
		tooLarge  *http.MaxBytesError
		syntaxErr *json.SyntaxError
	)
	switch {
	case errors.As(err, &tooLarge):
		return newStatusTextError(http.StatusRequestEntityTooLarge)
	case errors.As(err, &verrs):
		details := make([]fieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fieldError{Field: fe.Field(), Message: validationMessage(fe)})
		}
		return newValidationError(details...)
	case errors.Is(err, models.ErrInvalidDate):
		return newValidationError(fieldError{Field: "due_date", Message: models.ErrInvalidDate.Error()})
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return newValidationError(fieldError{Field: field, Message: "must be of type " + typeErr.Type.Kind().String()})
	case errors.Is(err, io.EOF):
		return newValidationError(fieldError{Field: "body", Message: "is required"})
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return newValidationError(fieldError{Field: "body", Message: "must be valid JSON"})
	default:
		return newValidationError(fieldError{Field: "body", Message: err.Error()})
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case priorityTag:
		return "must be one of " + models.PriorityChoices()
	case taskStatusTag:
		return "must be one of " + models.TaskStatusChoices()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
