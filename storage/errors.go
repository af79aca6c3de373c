package storage

// Code enumerates the last-error kinds a Storage call can leave behind
// (spec §4.8.5, §7).
type Code int

const (
	NoError Code = iota
	NotOpen
	DatabaseError
	ChainError
	DataIntegrityError
	UserCancelled
	InvalidParameter
	UnknownError
)

func (c Code) String() string {
	switch c {
	case NoError:
		return "NoError"
	case NotOpen:
		return "NotOpen"
	case DatabaseError:
		return "DatabaseError"
	case ChainError:
		return "ChainError"
	case DataIntegrityError:
		return "DataIntegrityError"
	case UserCancelled:
		return "UserCancelled"
	case InvalidParameter:
		return "InvalidParameter"
	default:
		return "UnknownError"
	}
}

// Error is the per-instance last-error value a Storage call leaves
// behind. It implements the standard error interface so callers can use
// ordinary Go error handling (errors.As) instead of a side-channel
// accessor, while still carrying the spec's code/message pair.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Message
}

func newError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}
