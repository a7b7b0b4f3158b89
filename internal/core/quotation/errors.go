package quotation

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound       = errors.New("record not found")
	ErrCriteriaNotFulfilled = errors.New("quotation criteria not fulfilled")
	ErrPersistenceConflict  = errors.New("quotation code conflict")
)

// RecordNotFoundError names the record that does not exist.
type RecordNotFoundError struct {
	Record string
	Key    string
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("unknown %s %s", e.Record, e.Key)
}

func (e *RecordNotFoundError) Is(target error) bool {
	return target == ErrRecordNotFound
}

// ViolationKind identifies which eligibility rule failed.
type ViolationKind string

const (
	AgeIneligible    ViolationKind = "age_ineligible"
	OutOfServiceArea ViolationKind = "out_of_service_area"
)

// Violation is the first eligibility rule a request failed.
type Violation struct {
	Kind     ViolationKind
	Age      int
	PostCode string
}

func (v *Violation) Error() string {
	switch v.Kind {
	case AgeIneligible:
		return fmt.Sprintf("customer's age %d is below %d", v.Age, EligibleAge)
	case OutOfServiceArea:
		return fmt.Sprintf("post code %s is not within the scope of service", v.PostCode)
	default:
		return string(v.Kind)
	}
}

func (v *Violation) Is(target error) bool {
	return target == ErrCriteriaNotFulfilled
}

// ViolationOf extracts the eligibility violation from err, if any.
func ViolationOf(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
