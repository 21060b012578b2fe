package territory

import (
	"errors"
	"fmt"

	"siegecraft.ai/internal/protocol"
)

// Rejection is returned when a request breaks a game rule. State is left
// unchanged whenever a Rejection is returned.
type Rejection struct {
	Code string
	Msg  string
}

func (r *Rejection) Error() string { return r.Code + ": " + r.Msg }

func reject(code string, format string, args ...any) error {
	return &Rejection{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// AsRejection unwraps err into a Rejection. Anything else maps to E_INTERNAL.
func AsRejection(err error) *Rejection {
	if err == nil {
		return nil
	}
	var r *Rejection
	if errors.As(err, &r) {
		return r
	}
	return &Rejection{Code: protocol.ErrInternal, Msg: err.Error()}
}
