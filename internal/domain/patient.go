// Package domain contains the core business entities and interfaces.
package domain

import "math"

// Gender is the fixed set of accepted patient genders.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOthers Gender = "others"
)

// Verdict is the categorical bucket of a BMI value.
type Verdict string

const (
	VerdictUnderweight Verdict = "Underweight"
	VerdictNormal      Verdict = "Normal"
	VerdictOverweight  Verdict = "Overweight"
	VerdictObese       Verdict = "Obese"
)

// Record holds the persisted attributes of a patient. The id is carried only
// as the key of the store mapping.
type Record struct {
	Name   string  `json:"name" bson:"name"`
	City   string  `json:"city" bson:"city"`
	Age    int     `json:"age" bson:"age"`
	Gender Gender  `json:"gender" bson:"gender"`
	Height float64 `json:"height" bson:"height"`
	Weight float64 `json:"weight" bson:"weight"`
}

// Patient is a validated record together with its identifier.
type Patient struct {
	ID string `json:"id"`
	Record
}

// PatientView is a record as returned to callers, with derived fields
// computed from the current height and weight.
type PatientView struct {
	Name    string  `json:"name"`
	City    string  `json:"city"`
	Age     int     `json:"age"`
	Gender  Gender  `json:"gender"`
	Height  float64 `json:"height"`
	Weight  float64 `json:"weight"`
	BMI     float64 `json:"bmi"`
	Verdict Verdict `json:"verdict"`
}

// BMI returns weight (kg) divided by the square of height (m), rounded to
// two decimal places. A non-positive height yields 0.
func BMI(height, weight float64) float64 {
	if height <= 0 {
		return 0
	}
	return math.Round(weight/(height*height)*100) / 100
}

// VerdictFor buckets a BMI value.
func VerdictFor(bmi float64) Verdict {
	switch {
	case bmi < 18.5:
		return VerdictUnderweight
	case bmi < 25:
		return VerdictNormal
	case bmi < 30:
		return VerdictOverweight
	default:
		return VerdictObese
	}
}

// View computes the derived fields for r.
func (r Record) View() PatientView {
	bmi := BMI(r.Height, r.Weight)
	return PatientView{
		Name:    r.Name,
		City:    r.City,
		Age:     r.Age,
		Gender:  r.Gender,
		Height:  r.Height,
		Weight:  r.Weight,
		BMI:     bmi,
		Verdict: VerdictFor(bmi),
	}
}
