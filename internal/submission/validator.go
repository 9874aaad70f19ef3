package submission

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kurihiro0119/classroom-sync/internal/domain"
	apperrors "github.com/kurihiro0119/classroom-sync/internal/errors"
)

// Field names reported in validation failures
const (
	FieldID       = "id"
	FieldEmail    = "email"
	FieldName     = "name"
	FieldUsername = "username"
)

// custom validation tags
const (
	studentIDTag = "studentid"
	instEmailTag = "instemail"
	fullNameTag  = "fullname"
	handleTag    = "handle"
)

// word matches one letter, digit or underscore in any script
const word = `[\p{L}\p{N}_]`

var (
	studentIDRegex = regexp.MustCompile(`^[0-9]{9}$`)
	fullNameRegex  = regexp.MustCompile(`^` + word + `+(\s` + word + `+)+$`)
	handleRegex    = regexp.MustCompile(`^` + word + `+$`)
)

// metadata is the validation view of RawFields
type metadata struct {
	ID       string `json:"id" validate:"studentid"`
	Email    string `json:"email" validate:"instemail"`
	Name     string `json:"name" validate:"fullname"`
	Username string `json:"username" validate:"handle"`
}

// ValidatorOptions configures a Validator
type ValidatorOptions struct {
	// EmailDomain is the institutional domain, e.g. cmail.carleton.ca
	EmailDomain string
	// EmailMatchPrefix accepts any email that starts with a valid address,
	// ignoring trailing characters.
	EmailMatchPrefix bool
}

// Validator checks raw metadata against the submission format rules
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator for the given institutional domain
func NewValidator(opts ValidatorOptions) *Validator {
	v := validator.New()

	// report json names instead of Go struct names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	emailPattern := `^` + word + `+@` + regexp.QuoteMeta(opts.EmailDomain)
	if !opts.EmailMatchPrefix {
		emailPattern += `$`
	}
	emailRegex := regexp.MustCompile(emailPattern)

	_ = v.RegisterValidation(studentIDTag, regexValidation(studentIDRegex))
	_ = v.RegisterValidation(instEmailTag, regexValidation(emailRegex))
	_ = v.RegisterValidation(fullNameTag, regexValidation(fullNameRegex))
	_ = v.RegisterValidation(handleTag, regexValidation(handleRegex))

	return &Validator{validate: v}
}

func regexValidation(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// Validate checks every field and returns the normalized identity, or a
// *errors.FieldError listing all failing field names in sorted order.
func (v *Validator) Validate(raw RawFields) (domain.Identity, error) {
	m := metadata{
		ID:       raw.ID,
		Email:    raw.Email,
		Name:     raw.Name,
		Username: raw.Username,
	}

	err := v.validate.Struct(m)
	if err == nil {
		return domain.Identity{
			ID:       m.ID,
			Email:    m.Email,
			Name:     m.Name,
			Username: m.Username,
		}, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.Identity{}, apperrors.NewInternalError("metadata validation", err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	sort.Strings(fields)

	return domain.Identity{}, &apperrors.FieldError{Fields: fields}
}
