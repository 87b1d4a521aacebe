package client

import (
	"rollcall/pkg/types"
)

// TeacherState is the teacher view projection for one running session.
type TeacherState struct {
	SessionActive bool
	Attendance    map[string]string
	Pending       []types.JoinRequest
	Summary       *types.Tally

	// RosterStale flags that a student was added during the session and the
	// roster should be re-fetched over REST. Local-only, never sent.
	RosterStale bool
}

// NewTeacherState creates a projection for a session the teacher just started.
func NewTeacherState() *TeacherState {
	return &TeacherState{
		SessionActive: true,
		Attendance:    make(map[string]string),
	}
}

// Resync returns the events to send after (re)connecting to an active session.
func (t *TeacherState) Resync() []types.Event {
	return []types.Event{
		{Event: types.EventGetPendingRequests},
		{Event: types.EventTodaySummary},
	}
}

// Apply folds one server event into the projection. Unknown events are
// ignored.
func (t *TeacherState) Apply(ev types.Event) error {
	switch ev.Event {
	case types.EventAttendanceMarked:
		var p types.AttendanceMarkedPayload
		if err := unmarshal(ev, &p); err != nil {
			return err
		}
		if t.Attendance == nil {
			t.Attendance = make(map[string]string)
		}
		t.Attendance[p.StudentID] = p.Status

	case types.EventTodaySummary:
		var tally types.Tally
		if err := unmarshal(ev, &tally); err != nil {
			return err
		}
		t.Summary = &tally

	case types.EventDone:
		var p types.DonePayload
		if err := unmarshal(ev, &p); err != nil {
			return err
		}
		t.Summary = &p.Tally
		t.SessionActive = false
		t.Pending = nil

	case types.EventNewJoinRequest:
		var p types.NewJoinRequestPayload
		if err := unmarshal(ev, &p); err != nil {
			return err
		}
		for _, r := range t.Pending {
			if r.StudentID == p.Student.StudentID {
				return nil
			}
		}
		t.Pending = append(t.Pending, p.Student)

	case types.EventPendingRequests:
		var p types.PendingRequestsPayload
		if err := unmarshal(ev, &p); err != nil {
			return err
		}
		t.Pending = p.Requests

	case types.EventStudentAdded:
		t.RosterStale = true
	}
	return nil
}

// Decide removes a request from the local pending list once the teacher has
// approved or rejected it. The authoritative removal happens server-side;
// this keeps the projection in step without waiting for a refresh.
func (t *TeacherState) Decide(studentID string) {
	for i, r := range t.Pending {
		if r.StudentID == studentID {
			t.Pending = append(t.Pending[:i], t.Pending[i+1:]...)
			return
		}
	}
}
