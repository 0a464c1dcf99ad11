package ports

import (
	"github.com/reglet-dev/reglet-fetch/domain/entities"
)

// Scheduler marshals work onto the host's single logical execution context.
// Post must not block; it returns iox.ErrWouldBlock when the host cannot
// accept more work right now.
type Scheduler interface {
	Post(task func()) error
}

// Responder is the host-side source context a bridge delivers into.
// Respond is only ever called from the host execution context.
type Responder interface {
	Respond(resp entities.Response)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(resp entities.Response)

// Respond implements Responder.
func (f ResponderFunc) Respond(resp entities.Response) {
	f(resp)
}
