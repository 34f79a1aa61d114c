package mailbox

import "fmt"

// MessageID tags every mailbox element. The zero value marks an asynchronous
// message; any other value identifies a request or, with the response flag
// set, the response to one.
type MessageID uint64

const (
	// responseFlag marks a response to the request with the same value.
	responseFlag MessageID = 1 << 63

	// answeredFlag marks a request that already received its response.
	answeredFlag MessageID = 1 << 62

	valueMask = answeredFlag - 1
)

// AsyncID is the id of every asynchronous message.
const AsyncID MessageID = 0

// NewRequestID returns the request id with the given sequence value. The
// value must be non-zero and fit in 62 bits.
func NewRequestID(v uint64) MessageID {
	id := MessageID(v) & valueMask
	if id == 0 {
		panic(fmt.Sprintf("mailbox: invalid request id %d", v))
	}

	return id
}

// Value returns the sequence value shared by a request and its response.
func (id MessageID) Value() uint64 {
	return uint64(id & valueMask)
}

// IsAsync reports whether the id belongs to an asynchronous message.
func (id MessageID) IsAsync() bool {
	return id&valueMask == 0
}

// IsRequest reports whether the id belongs to a request expecting a
// response.
func (id MessageID) IsRequest() bool {
	return !id.IsAsync() && id&responseFlag == 0
}

// IsResponse reports whether the id belongs to a response.
func (id MessageID) IsResponse() bool {
	return !id.IsAsync() && id&responseFlag != 0
}

// IsAnswered reports whether the request was already answered.
func (id MessageID) IsAnswered() bool {
	return id&answeredFlag != 0
}

// MarkAnswered returns the id with the answered flag set.
func (id MessageID) MarkAnswered() MessageID {
	return id | answeredFlag
}

// ResponseID returns the id a response to this request carries. Non-request
// ids have no response id and yield AsyncID.
func (id MessageID) ResponseID() MessageID {
	if !id.IsRequest() {
		return AsyncID
	}

	return id&valueMask | responseFlag
}

// RequestID returns the id of the request a response answers.
func (id MessageID) RequestID() MessageID {
	return id & valueMask
}

// String renders the id for logs.
func (id MessageID) String() string {
	switch {
	case id.IsAsync():
		return "async"

	case id.IsResponse():
		return fmt.Sprintf("response(%d)", id.Value())

	case id.IsAnswered():
		return fmt.Sprintf("request(%d, answered)", id.Value())

	default:
		return fmt.Sprintf("request(%d)", id.Value())
	}
}
