package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/benpsk/account-starter/internal/account"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type signupForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=4"`
	Confirm  string `validate:"eqfield=Password"`
}

type passwordForm struct {
	Password string `validate:"required,min=4"`
	Confirm  string `validate:"eqfield=Password"`
}

type forgotForm struct {
	Email string `validate:"required,email"`
}

func formEmail(r *http.Request) string {
	return account.NormalizeEmail(r.PostFormValue("email"))
}

// formError describes the first failed rule of a form.
func formError(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return "Please check your input and try again."
	}
	fe := fieldErrors[0]
	switch fe.Field() + "." + fe.Tag() {
	case "Email.required", "Email.email":
		return "Please enter a valid email address."
	case "Password.required":
		return "Password cannot be blank."
	case "Password.min":
		return "Password must be at least 4 characters long."
	case "Confirm.eqfield":
		return "Passwords do not match."
	default:
		return "Please check your " + strings.ToLower(fe.Field()) + "."
	}
}
