package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// PatientInput is the full set of attributes accepted on create. Pointer
// fields let a missing attribute be reported instead of defaulting to zero.
type PatientInput struct {
	ID     *string  `json:"id" validate:"required,min=1"`
	Name   *string  `json:"name" validate:"required"`
	City   *string  `json:"city" validate:"required"`
	Age    *int     `json:"age" validate:"required,gt=0,lt=120"`
	Gender *Gender  `json:"gender" validate:"required,oneof=male female others"`
	Height *float64 `json:"height" validate:"required,gt=0"`
	Weight *float64 `json:"weight" validate:"required,gt=0"`
}

// Optional is a JSON field that records whether it was present in the
// payload and, if so, whether it was null.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns a present, non-null Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// UnmarshalJSON is only invoked for keys present in the payload.
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Null = true
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

// PatientUpdate is a partial set of attributes. The id is never updatable.
type PatientUpdate struct {
	Name   Optional[string]  `json:"name"`
	City   Optional[string]  `json:"city"`
	Age    Optional[int]     `json:"age"`
	Gender Optional[Gender]  `json:"gender"`
	Height Optional[float64] `json:"height"`
	Weight Optional[float64] `json:"weight"`
}

// Empty reports whether no field is present.
func (u PatientUpdate) Empty() bool {
	return !u.Name.Set && !u.City.Set && !u.Age.Set && !u.Gender.Set && !u.Height.Set && !u.Weight.Set
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(finiteBMI, PatientInput{})
	return v
}

// finiteBMI rejects height and weight pairs whose BMI overflows float64 and
// so cannot be rendered.
func finiteBMI(sl validator.StructLevel) {
	in := sl.Current().Interface().(PatientInput)
	if in.Height == nil || in.Weight == nil || *in.Height <= 0 || *in.Weight <= 0 {
		return
	}
	bmi := BMI(*in.Height, *in.Weight)
	if math.IsInf(bmi, 0) || math.IsNaN(bmi) {
		sl.ReportError(in.Height, "height", "Height", "finite_bmi", "")
	}
}

// ValidateFull checks every constraint on in and returns the normalized
// patient.
func ValidateFull(in PatientInput) (Patient, error) {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return Patient{}, toValidationError(verrs)
		}
		return Patient{}, err
	}
	return Patient{
		ID: *in.ID,
		Record: Record{
			Name:   *in.Name,
			City:   *in.City,
			Age:    *in.Age,
			Gender: *in.Gender,
			Height: *in.Height,
			Weight: *in.Weight,
		},
	}, nil
}

// MergeUpdate overlays the present fields of u onto existing and re-validates
// the result. A field present as null clears the attribute and therefore
// fails validation.
func MergeUpdate(existing Patient, u PatientUpdate) (Patient, error) {
	in := existing.Input()
	overlay(&in.Name, u.Name)
	overlay(&in.City, u.City)
	overlay(&in.Age, u.Age)
	overlay(&in.Gender, u.Gender)
	overlay(&in.Height, u.Height)
	overlay(&in.Weight, u.Weight)
	return ValidateFull(in)
}

// Input converts p back into an input so it can be re-validated.
func (p Patient) Input() PatientInput {
	r := p.Record
	return PatientInput{
		ID:     &p.ID,
		Name:   &r.Name,
		City:   &r.City,
		Age:    &r.Age,
		Gender: &r.Gender,
		Height: &r.Height,
		Weight: &r.Weight,
	}
}

func overlay[T any](dst **T, o Optional[T]) {
	if !o.Set {
		return
	}
	if o.Null {
		*dst = nil
		return
	}
	v := o.Value
	*dst = &v
}

func toValidationError(verrs validator.ValidationErrors) *ValidationError {
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "min":
		return "must not be empty"
	case "gt":
		return "must be greater than " + fe.Param()
	case "lt":
		return "must be less than " + fe.Param()
	case "finite_bmi":
		return "too small for the given weight"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return "is invalid"
}
