package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"

	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
)

const maxJSONBody = 1 << 20

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func newValidator() (*validator.Validate, ut.Translator) {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("yearlevel", func(fl validator.FieldLevel) bool {
		return domain.YearLevel(fl.Field().String()).Valid()
	}); err != nil {
		panic(err)
	}

	english := en.New()
	trans, _ := ut.New(english, english).GetTranslator("en")
	if err := entranslations.RegisterDefaultTranslations(v, trans); err != nil {
		logger.Warn("Failed to register validation translations", "error", err)
	}
	levels := make([]string, len(domain.YearLevels))
	for i, y := range domain.YearLevels {
		levels[i] = string(y)
	}
	_ = v.RegisterTranslation("yearlevel", trans,
		func(t ut.Translator) error {
			return t.Add("yearlevel", "{0} must be one of "+strings.Join(levels, ", "), true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T("yearlevel", fe.Field())
			return msg
		},
	)
	return v, trans
}

func (h *Handlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		h.errorJSON(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), nil)
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var validationErrors []ValidationError
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				validationErrors = append(validationErrors, ValidationError{
					Field:   fe.Field(),
					Message: fe.Translate(h.trans),
				})
			}
		}
		h.errorJSON(w, r, http.StatusBadRequest, "Input validation failed", validationErrors)
		return false
	}
	return true
}
