package platform

import "fmt"

// RegistrationError is returned when the call-creation endpoint answers with
// a non-2xx status, an unusable body, or cannot be reached at all.
// Exactly one of Status, Parse or Err is set.
type RegistrationError struct {
	Status int
	Body   string
	Parse  error
	Err    error
}

func (e *RegistrationError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Status != 0:
		return fmt.Sprintf("call registration failed: status %d: %s", e.Status, e.Body)
	case e.Parse != nil:
		return fmt.Sprintf("call registration failed: parse response: %v", e.Parse)
	default:
		return fmt.Sprintf("call registration failed: %v", e.Err)
	}
}

func (e *RegistrationError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Parse != nil {
		return e.Parse
	}
	return e.Err
}

// FetchError is returned by GetCall for transport failures and non-2xx replies.
type FetchError struct {
	CallID string
	Status int
	Body   string
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Status != 0:
		return fmt.Sprintf("get call %s: status %d: %s", e.CallID, e.Status, e.Body)
	default:
		return fmt.Sprintf("get call %s: %v", e.CallID, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
