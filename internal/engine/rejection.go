package engine

import (
	"errors"
	"fmt"
)

// RejectionKind 业务规则拒绝类型
type RejectionKind string

const (
	RejectNotFound         RejectionKind = "not_found"
	RejectCapacityExceeded RejectionKind = "capacity_exceeded"
	RejectInvalidValue     RejectionKind = "invalid_value"
	RejectRoomOccupied     RejectionKind = "room_occupied"
	// RejectConflict is reserved for mutations lost to a concurrent writer.
	// The mutation lock makes this unreachable in-process; a future external
	// writer would surface it here.
	RejectConflict RejectionKind = "conflict"
)

// Rejection 类型化的业务规则拒绝。它只回复给发起方，绝不广播；
// 一次被拒绝的操作不产生任何状态变化。
type Rejection struct {
	Kind    RejectionKind
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

// Reject builds a typed rejection with a human-readable message.
func Reject(kind RejectionKind, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsRejection unwraps err into a *Rejection when it is one.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
