package rpsdto

import "github.com/park285/rps-room-server/internal/rps"

// ErrorMessage is the body returned for failed requests.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Retryable is set for transient failures such as a busy room.
	Retryable bool `json:"retryable,omitempty"`
}

func FromError(err error) ErrorMessage {
	kind := rps.KindOf(err)
	if kind == "" {
		return ErrorMessage{Code: "INTERNAL", Message: "internal error"}
	}
	return ErrorMessage{Code: string(kind), Message: err.Error(), Retryable: kind == rps.KindRoomBusy}
}
