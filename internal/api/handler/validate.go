package handler

import (
	"encoding/json"
	"net/http"

	"github.com/Rrens/chatvault/internal/api/middleware"
	"github.com/Rrens/chatvault/internal/api/response"
	"github.com/Rrens/chatvault/internal/service"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes the 400 response itself and reports whether to continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "invalid request body")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			errors := make(map[string]string)
			for _, e := range validationErrors {
				field := e.Field()
				tag := e.Tag()
				switch tag {
				case "required":
					errors[field] = "field is required"
				case "oneof":
					errors[field] = "must be one of: " + e.Param()
				case "min":
					errors[field] = "must be at least " + e.Param() + " characters"
				case "max":
					errors[field] = "must be at most " + e.Param() + " characters"
				default:
					errors[field] = "validation failed on " + tag
				}
			}
			response.BadRequest(w, errors)
			return false
		}
		response.BadRequest(w, err.Error())
		return false
	}
	return true
}

// session returns the live session placed in the context by the auth middleware
func session(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	sess, ok := middleware.GetSession(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return nil, false
	}
	return sess, true
}
