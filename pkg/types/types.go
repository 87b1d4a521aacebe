package types

import (
	"encoding/json"
	"time"
)

// Client -> server event names. The wire protocol is a JSON envelope
// {event, data} over a WebSocket text frame in both directions.
const (
	EventJoinRequest        = "JOIN_REQUEST"
	EventMyAttendance       = "MY_ATTENDANCE"
	EventGetMyClasses       = "GET_MY_CLASSES"
	EventGetPendingRequests = "GET_PENDING_REQUESTS"
	EventApproveJoin        = "APPROVE_JOIN"
	EventRejectJoin         = "REJECT_JOIN"
	EventAttendanceMarked   = "ATTENDANCE_MARKED"
	EventTodaySummary       = "TODAY_SUMMARY"
	EventDone               = "DONE"
)

// Server -> client event names. ATTENDANCE_MARKED, MY_ATTENDANCE, TODAY_SUMMARY
// and DONE are reused in the outbound direction with payloads attached.
const (
	EventSessionInfo     = "SESSION_INFO"
	EventMyClasses       = "MY_CLASSES"
	EventJoinResponse    = "JOIN_RESPONSE"
	EventJoinApproved    = "JOIN_APPROVED"
	EventJoinRejected    = "JOIN_REJECTED"
	EventNewJoinRequest  = "NEW_JOIN_REQUEST"
	EventPendingRequests = "PENDING_REQUESTS"
	EventStudentAdded    = "STUDENT_ADDED"
	EventError           = "ERROR"
)

// Roles attached to an authenticated connection.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Attendance marks inside a session. StatusUnset is the wire representation
// the client expects for a student whose mark has not been decided yet.
const (
	StatusUnset   = "not yet updated"
	StatusPresent = "present"
	StatusAbsent  = "absent"
)

// Join request decision statuses carried in JOIN_RESPONSE.
const (
	JoinPending         = "pending"
	JoinAlreadyEnrolled = "already_enrolled"
)

// Event is the protocol envelope. Data stays raw until the router knows the
// event kind; outbound events marshal their payload into Data.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an outbound envelope, marshaling payload into Data.
// A nil payload produces an envelope without a data field.
func NewEvent(name string, payload interface{}) (Event, error) {
	ev := Event{Event: name}
	if payload == nil {
		return ev, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	ev.Data = data
	return ev, nil
}

// User is an authenticated account resolved from a transport token.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Class is a roster resource owned by one teacher.
type Class struct {
	ID        string    `json:"id"`
	Name      string    `json:"className"`
	TeacherID string    `json:"teacherId"`
	CreatedAt time.Time `json:"createdAt"`
}

// JoinRequest is a student's ad-hoc request to be added to a class during an
// active session. Undecided requests die with the session.
type JoinRequest struct {
	StudentID    string    `json:"studentId"`
	StudentName  string    `json:"studentName"`
	StudentEmail string    `json:"studentEmail"`
	RequestedAt  time.Time `json:"requestedAt"`
}

// Tally is derived from the attendance map, never stored. Unset entries count
// toward Total but not Present/Absent, so Present+Absent <= Total.
type Tally struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Total   int `json:"total"`
}

// AttendanceRecord is one student's final mark, persisted when a session ends.
type AttendanceRecord struct {
	StudentID    string `json:"studentId"`
	StudentName  string `json:"studentName"`
	StudentEmail string `json:"studentEmail"`
	Status       string `json:"status"`
}

// SessionResult is the persisted outcome of a completed session.
type SessionResult struct {
	ClassID   string             `json:"classId"`
	ClassName string             `json:"className"`
	StartedAt time.Time          `json:"startedAt"`
	EndedAt   time.Time          `json:"endedAt"`
	Records   []AttendanceRecord `json:"records"`
	Summary   Tally              `json:"summary"`
}

// Payloads for inbound events that carry data.

type MarkAttendancePayload struct {
	StudentID string `json:"studentId"`
	Status    string `json:"status"`
}

type JoinDecisionPayload struct {
	StudentID string `json:"studentId"`
}

// Payloads for outbound events.

type SessionInfoPayload struct {
	Active    bool       `json:"active"`
	ClassID   string     `json:"classId,omitempty"`
	ClassName string     `json:"className,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

type MyClassesPayload struct {
	Classes []Class `json:"classes"`
}

type JoinResponsePayload struct {
	Status string `json:"status"`
}

type JoinApprovedPayload struct {
	ClassName string `json:"className"`
}

type NewJoinRequestPayload struct {
	Student JoinRequest `json:"student"`
}

type PendingRequestsPayload struct {
	Requests []JoinRequest `json:"requests"`
}

type AttendanceMarkedPayload struct {
	StudentID string `json:"studentId"`
	Status    string `json:"status"`
}

type MyAttendancePayload struct {
	Status string `json:"status"`
}

type DonePayload struct {
	Tally
	Message string `json:"message,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
