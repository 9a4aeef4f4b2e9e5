// Package handler provides HTTP handlers for the Tramline API.
package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tramline/tramline/internal/api/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	v.RegisterStructValidation(validateEndpoint, models.Endpoint{})
	return v
}

// validateEndpoint requires a stop id or a complete coordinate.
func validateEndpoint(sl validator.StructLevel) {
	e := sl.Current().Interface().(models.Endpoint)
	if e.StopID != "" {
		return
	}
	switch {
	case e.Lat == nil && e.Lon == nil:
		sl.ReportError(e.StopID, "stopId", "StopID", "stop_or_coordinate", "")
	case e.Lat == nil:
		sl.ReportError(e.Lat, "lat", "Lat", "required_with_lon", "")
	case e.Lon == nil:
		sl.ReportError(e.Lon, "lon", "Lon", "required_with_lat", "")
	}
}

// fieldErrors converts validation errors to API field errors.
func fieldErrors(err error) []models.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []models.FieldError{{Field: "body", Message: err.Error(), Code: "INVALID"}}
	}

	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: fieldMessage(fe),
			Code:    strings.ToUpper(fe.Tag()),
		})
	}
	return out
}

// fieldPath drops the struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "stop_or_coordinate":
		return "a stop id or a coordinate is required"
	case "required_with_lat":
		return "lon is required with lat"
	case "required_with_lon":
		return "lat is required with lon"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
