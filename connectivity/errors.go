package connectivity

import "fmt"

// ErrServiceNotFound is returned when Call targets a service with no
// handler.
type ErrServiceNotFound struct {
	Service string
}

func (e *ErrServiceNotFound) Error() string {
	return fmt.Sprintf("connectivity: service not routable: %s", e.Service)
}

// ErrPanic wraps a recovered panic value as an error.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return "connectivity: handler panicked"
}

// ErrRemoteStatus is returned by HTTPHandler on a non-2xx reply.
type ErrRemoteStatus struct {
	Status int
	Body   string
}

func (e *ErrRemoteStatus) Error() string {
	return fmt.Sprintf("connectivity/http: status %d: %s", e.Status, e.Body)
}
