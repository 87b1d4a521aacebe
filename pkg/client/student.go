// Package client holds the local state projections the teacher and student
// views maintain from the server event stream. The reducers are pure: every
// mutation is the application of one inbound event, and the server stays the
// only authority on session truth. The one exception is Skip, a local-only
// affordance that never reaches the server.
package client

import (
	"encoding/json"
	"fmt"

	"rollcall/pkg/types"
)

// Join statuses a student projection can hold beyond the wire statuses.
const (
	JoinApproved = "approved"
	JoinRejected = "rejected"
)

// NoActiveSessionMessage matches the server notice sent when a student polls
// before any session exists. The student view suppresses it because polling
// outside a session is routine, not an error.
const NoActiveSessionMessage = "No active attendance session"

// StudentState is the student view projection.
type StudentState struct {
	userID string

	SessionActive bool
	Session       types.SessionInfoPayload
	Classes       []types.Class
	JoinStatus    string
	Skipped       bool
	MyStatus      string
	Summary       *types.Tally
	Message       string
}

// NewStudentState creates a projection for one authenticated student. The
// user id filters attendance broadcasts meant for other students.
func NewStudentState(userID string) *StudentState {
	return &StudentState{userID: userID}
}

// Skip dismisses the join prompt locally. The server is never told; session
// state elsewhere is unaffected and the next session resets the flag.
func (s *StudentState) Skip() {
	s.Skipped = true
}

// Resync returns the events to send after (re)connecting. The stream has no
// replay guarantee, so current state is re-queried explicitly.
func (s *StudentState) Resync() []types.Event {
	return []types.Event{
		{Event: types.EventGetMyClasses},
		{Event: types.EventMyAttendance},
	}
}

// Apply folds one server event into the projection. It returns follow-up
// events the client should send, such as a class-list refresh after an
// approval. Unknown events are ignored.
func (s *StudentState) Apply(ev types.Event) ([]types.Event, error) {
	switch ev.Event {
	case types.EventSessionInfo:
		var p types.SessionInfoPayload
		if err := unmarshal(ev, &p); err != nil {
			return nil, err
		}
		s.SessionActive = p.Active
		if p.Active {
			s.Session = p
			s.Message = "A class session is active!"
		} else {
			s.Message = "No active session. Waiting for teacher..."
		}

	case types.EventMyClasses:
		var p types.MyClassesPayload
		if err := unmarshal(ev, &p); err != nil {
			return nil, err
		}
		s.Classes = p.Classes

	case types.EventJoinResponse:
		var p types.JoinResponsePayload
		if err := unmarshal(ev, &p); err != nil {
			return nil, err
		}
		s.JoinStatus = p.Status
		switch p.Status {
		case types.JoinPending:
			s.Message = "Join request sent! Waiting for teacher approval..."
		case types.JoinAlreadyEnrolled:
			s.Message = "You are already enrolled in this class!"
		}

	case types.EventJoinApproved:
		var p types.JoinApprovedPayload
		if err := unmarshal(ev, &p); err != nil {
			return nil, err
		}
		s.JoinStatus = JoinApproved
		s.Message = fmt.Sprintf("You have been added to %s!", p.ClassName)
		return []types.Event{{Event: types.EventGetMyClasses}}, nil

	case types.EventJoinRejected:
		s.JoinStatus = JoinRejected
		s.Message = "Your join request was rejected."

	case types.EventAttendanceMarked:
		var p types.AttendanceMarkedPayload
		if err := unmarshal(ev, &p); err != nil {
			return nil, err
		}
		if p.StudentID == s.userID {
			s.MyStatus = p.Status
			s.Message = fmt.Sprintf("Your attendance: %s", p.Status)
		}

	case types.EventMyAttendance:
		var p types.MyAttendancePayload
		if err := unmarshal(ev, &p); err != nil {
			return nil, err
		}
		if p.Status != types.StatusUnset {
			s.MyStatus = p.Status
		}

	case types.EventTodaySummary:
		var t types.Tally
		if err := unmarshal(ev, &t); err != nil {
			return nil, err
		}
		s.Summary = &t

	case types.EventDone:
		var p types.DonePayload
		if err := unmarshal(ev, &p); err != nil {
			return nil, err
		}
		s.Summary = &p.Tally
		s.SessionActive = false
		s.JoinStatus = ""
		s.Skipped = false
		s.MyStatus = ""
		s.Message = "Session ended. Attendance recorded."

	case types.EventError:
		var p types.ErrorPayload
		if err := unmarshal(ev, &p); err != nil {
			return nil, err
		}
		if p.Message != NoActiveSessionMessage {
			s.Message = p.Message
		}
	}
	return nil, nil
}

func unmarshal(ev types.Event, out interface{}) error {
	if len(ev.Data) == 0 {
		return fmt.Errorf("event %s has no payload", ev.Event)
	}
	if err := json.Unmarshal(ev.Data, out); err != nil {
		return fmt.Errorf("malformed %s payload: %w", ev.Event, err)
	}
	return nil
}
