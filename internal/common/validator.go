package common

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator"
	"github.com/jo-hoe/carddraw/internal/backend/imageprocessing"
	"github.com/labstack/echo/v4"
)

type GenericEchoValidator struct {
	Validator *validator.Validate
}

// NewGenericEchoValidator reports fields by their json names.
func NewGenericEchoValidator() *GenericEchoValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// imagedata accepts any RFC 2397 data URI, base64 or percent-encoded.
	if err := v.RegisterValidation("imagedata", func(fl validator.FieldLevel) bool {
		_, err := imageprocessing.ParseDataURI(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}
	return &GenericEchoValidator{Validator: v}
}

func (gv *GenericEchoValidator) Validate(i interface{}) error {
	if err := gv.Validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, ValidationMessage(err))
	}
	return nil
}

// ValidationMessage renders validator errors as one readable sentence, e.g.
// `Validation error: "images[0].data" must be a data URI`.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Sprintf("Validation error: %v", err)
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%q %s", fieldPath(fe.Namespace()), describeTag(fe.Tag(), fe.Param())))
	}
	return "Validation error: " + strings.Join(parts, "; ")
}

// fieldPath drops the struct name from a namespace such as UploadRequest.images[0].name.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func describeTag(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "imagedata":
		return "must be a data URI"
	case "min":
		return fmt.Sprintf("must be at least %s", param)
	case "max":
		return fmt.Sprintf("must be at most %s", param)
	default:
		if param != "" {
			return fmt.Sprintf("failed %s=%s", tag, param)
		}
		return fmt.Sprintf("failed %s", tag)
	}
}
