package client

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	var ok bool
	translator, ok = ut.New(en.New(), en.New()).GetTranslator("en")
	if !ok {
		panic("client: failed to get 'en' translator")
	}
	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(err)
	}

	// Field names in messages are the yaml keys a config file would use.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate checks val against its validate tags and reports every violation
// as a [FieldErrors].
func Validate(val any) error {
	err := validate.Struct(val)
	if err == nil {
		return nil
	}

	var verrors validator.ValidationErrors
	if !errors.As(err, &verrors) {
		return err
	}

	fields := make(FieldErrors, 0, len(verrors))
	for _, verror := range verrors {
		fields = append(fields, FieldError{
			Field: verror.Field(),
			Path:  keyPath(verror.Namespace()),
			Err:   message(verror),
		})
	}
	return fields
}

// keyPath drops the root type name from a validator namespace, leaving the
// dotted key ("client.throttle.rps").
func keyPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// FieldError is a single setting that failed validation.
type FieldError struct {
	Field string `yaml:"field"`
	Path  string `yaml:"path"`
	Err   string `yaml:"error"`
}

// FieldErrors is every setting that failed validation, in declaration order.
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, f := range fe {
		parts[i] = f.Path + ": " + f.Err
	}
	return strings.Join(parts, "; ")
}

// Fields returns the names of the failing settings.
func (fe FieldErrors) Fields() []string {
	names := make([]string, len(fe))
	for i, f := range fe {
		names[i] = f.Field
	}
	return names
}

func message(verror validator.FieldError) string {
	switch verror.Tag() {
	case "hostname|ip":
		return verror.Field() + " must be a host name or an IP address"
	case "required_with":
		return verror.Field() + " is required when " + verror.Param() + " is set"
	default:
		return verror.Translate(translator)
	}
}
