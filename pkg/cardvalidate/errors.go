package cardvalidate

import "errors"

// Rejection kinds. A *RejectError matches exactly one of them with
// errors.Is.
var (
	ErrParse           = errors.New("card could not be parsed")
	ErrKindMismatch    = errors.New("card is not a vcard")
	ErrValidationFatal = errors.New("card failed validation")
)

// RejectError reports why a payload was refused. Reason is safe to return
// to clients.
type RejectError struct {
	Kind   error
	Reason string
	Err    error
}

func (e *RejectError) Error() string {
	if e == nil {
		return ""
	}
	return e.Reason
}

func (e *RejectError) Unwrap() []error {
	if e == nil {
		return nil
	}
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func reject(kind error, reason string, err error) error {
	return &RejectError{Kind: kind, Reason: reason, Err: err}
}
