package session

import (
	"sync"
	"time"

	"rollcall/pkg/types"
)

// Session holds the live state of one attendance window for one class.
// All mutations go through the session's mutex: one logical owner per class,
// so concurrent events for the same session apply in arrival order.
// Reads hand out snapshots, never live references.
type Session struct {
	mu sync.Mutex

	classID   string
	className string
	teacherID string
	startedAt time.Time
	active    bool

	// attendance holds one entry per enrolled-or-approved student.
	// identities carries the matching user records for persisted results.
	attendance map[string]string
	identities map[string]*types.User
	pending    []types.JoinRequest
}

// newSession seeds attendance from the class roster, all entries unset.
func newSession(class *types.Class, roster []*types.User) *Session {
	s := &Session{
		classID:    class.ID,
		className:  class.Name,
		teacherID:  class.TeacherID,
		startedAt:  time.Now(),
		active:     true,
		attendance: make(map[string]string, len(roster)),
		identities: make(map[string]*types.User, len(roster)),
	}
	for _, student := range roster {
		s.attendance[student.ID] = types.StatusUnset
		s.identities[student.ID] = student
	}
	return s
}

// ClassID returns the class this session belongs to.
func (s *Session) ClassID() string { return s.classID }

// ClassName returns the display name of the class.
func (s *Session) ClassName() string { return s.className }

// TeacherID returns the teacher who started the session.
func (s *Session) TeacherID() string { return s.teacherID }

// Active reports whether the session is still accepting events.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Info returns the SESSION_INFO snapshot pushed to connecting clients.
func (s *Session) Info() types.SessionInfoPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	started := s.startedAt
	return types.SessionInfoPayload{
		Active:    s.active,
		ClassID:   s.classID,
		ClassName: s.className,
		StartedAt: &started,
	}
}

// MarkAttendance overwrites a student's mark. Marking is repeatable:
// re-marking with the same or a different status is last-write-wins.
func (s *Session) MarkAttendance(studentID, status string) error {
	if !types.IsValidMark(status) {
		return ErrInvalidStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return ErrSessionEnded
	}
	if _, enrolled := s.attendance[studentID]; !enrolled {
		return ErrNotEnrolled
	}
	s.attendance[studentID] = status
	return nil
}

// StatusOf returns a student's current mark. The second result is false for
// students with no attendance entry.
func (s *Session) StatusOf(studentID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.attendance[studentID]
	return status, ok
}

// Enrolled reports whether the student has an attendance entry.
func (s *Session) Enrolled(studentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.attendance[studentID]
	return ok
}

// RequestJoin records a student's ad-hoc join request. Students who already
// have an attendance entry get AlreadyEnrolled and no request is created.
// A repeated request while one is pending returns Pending again without a
// second entry; isNew tells the caller whether to notify the teacher.
func (s *Session) RequestJoin(student *types.User) (status string, isNew bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, enrolled := s.attendance[student.ID]; enrolled {
		return types.JoinAlreadyEnrolled, false
	}
	for _, req := range s.pending {
		if req.StudentID == student.ID {
			return types.JoinPending, false
		}
	}
	s.pending = append(s.pending, types.JoinRequest{
		StudentID:    student.ID,
		StudentName:  student.Name,
		StudentEmail: student.Email,
		RequestedAt:  time.Now(),
	})
	return types.JoinPending, true
}

// PendingRequests returns a snapshot of undecided join requests in arrival order.
func (s *Session) PendingRequests() []types.JoinRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.JoinRequest, len(s.pending))
	copy(out, s.pending)
	return out
}

// takePending removes and returns the pending request for studentID.
func (s *Session) takePending(studentID string) (types.JoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, req := range s.pending {
		if req.StudentID == studentID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return req, nil
		}
	}
	return types.JoinRequest{}, ErrNoPendingRequest
}

// restorePending puts a request back after a failed approval so the teacher
// can retry the decision.
func (s *Session) restorePending(req types.JoinRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, req)
}

// addApproved inserts an unset attendance entry for a student approved
// through the join-request flow.
func (s *Session) addApproved(student *types.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.attendance[student.ID]; exists {
		return
	}
	s.attendance[student.ID] = types.StatusUnset
	s.identities[student.ID] = student
}

// Summary computes the running tally from the attendance map. Unset entries
// count toward Total only, so Present+Absent <= Total always holds.
func (s *Session) Summary() types.Tally {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

func (s *Session) summaryLocked() types.Tally {
	tally := types.Tally{Total: len(s.attendance)}
	for _, status := range s.attendance {
		switch status {
		case types.StatusPresent:
			tally.Present++
		case types.StatusAbsent:
			tally.Absent++
		}
	}
	return tally
}

// end transitions the session to its terminal state and builds the result to
// persist. Undecided join requests are discarded. Ending twice returns
// ErrSessionEnded; the first result stands.
func (s *Session) end() (*types.SessionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil, ErrSessionEnded
	}
	s.active = false
	s.pending = nil

	records := make([]types.AttendanceRecord, 0, len(s.attendance))
	for studentID, status := range s.attendance {
		record := types.AttendanceRecord{StudentID: studentID, Status: status}
		if user, ok := s.identities[studentID]; ok {
			record.StudentName = user.Name
			record.StudentEmail = user.Email
		}
		records = append(records, record)
	}

	return &types.SessionResult{
		ClassID:   s.classID,
		ClassName: s.className,
		StartedAt: s.startedAt,
		EndedAt:   time.Now(),
		Records:   records,
		Summary:   s.summaryLocked(),
	}, nil
}
