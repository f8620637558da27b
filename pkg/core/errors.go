package core

// Error is a coded failure from the shared helpers, e.g. INVALID_LEVEL or
// INVALID_INPUT.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
