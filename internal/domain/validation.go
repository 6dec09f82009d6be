package domain

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// NewValidator creates a configured validator instance
func NewValidator() *validator.Validate {
	v := validator.New()

	// Names are whatever the manager wrote; only blank ones are rejected
	_ = v.RegisterValidation("not_blank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	v.RegisterStructValidation(serverStructLevel, Server{})

	return v
}

func sharedValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = NewValidator()
	})
	return validate
}

// stdio servers need a command, HTTP transports need a URL
func serverStructLevel(sl validator.StructLevel) {
	s := sl.Current().Interface().(Server)
	switch s.Type {
	case TypeStdio:
		if s.Config.Command == "" {
			sl.ReportError(s.Config.Command, "Config.Command", "command", "required_for_stdio", "")
		}
	case TypeSSE, TypeStreamableHTTP:
		if s.Config.URL == "" {
			sl.ReportError(s.Config.URL, "Config.URL", "url", "required_for_http", "")
		}
	}
}

// ValidateServer validates a Server record's shape
func ValidateServer(server *Server) error {
	return sharedValidator().Struct(server)
}

// ValidateWorkspace validates a Workspace record's shape
func ValidateWorkspace(ws *Workspace) error {
	return sharedValidator().Struct(ws)
}

// ValidationDetails flattens validator errors into API error details
func ValidationDetails(err error) []ErrorDetail {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ErrorDetail{{Message: err.Error()}}
	}

	details := make([]ErrorDetail, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, ErrorDetail{
			Message:  fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
			Location: "body." + fe.Namespace(),
			Value:    fe.Value(),
		})
	}
	return details
}
