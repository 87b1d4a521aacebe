package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

// Registry owns the classID -> active session mapping. It is the only writer
// of session state; everything else goes through its methods or through
// snapshots. Sessions for different classes are independent.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	roster interfaces.RosterStore
	store  interfaces.AttendanceStore
	logger *zap.Logger
}

// NewRegistry creates a session registry. The registry is injected where
// needed; there is no package-level instance.
func NewRegistry(roster interfaces.RosterStore, store interfaces.AttendanceStore, logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		roster:   roster,
		store:    store,
		logger:   logger,
	}
}

// Start creates and registers a session for a class, seeding attendance from
// the enrolled roster. At most one active session may exist per class; a
// second start fails with ErrSessionConflict and leaves the first untouched.
func (r *Registry) Start(ctx context.Context, class *types.Class) (*Session, error) {
	roster, err := r.roster.GetRoster(ctx, class.ID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[class.ID]; ok && existing.Active() {
		return nil, ErrSessionConflict
	}

	s := newSession(class, roster)
	r.sessions[class.ID] = s
	r.logger.Info("attendance session started",
		zap.String("class_id", class.ID),
		zap.String("class", class.Name),
		zap.Int("roster", len(roster)))
	return s, nil
}

// Active returns the active session for a class, if any.
func (r *Registry) Active(classID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[classID]
	if !ok || !s.Active() {
		return nil, false
	}
	return s, true
}

// ActiveForTeacher returns the session started by a teacher. When a teacher
// runs sessions for several classes at once, the most recently started wins.
func (r *Registry) ActiveForTeacher(teacherID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Session
	for _, s := range r.sessions {
		if !s.Active() || s.TeacherID() != teacherID {
			continue
		}
		if best == nil || s.startedAt.After(best.startedAt) {
			best = s
		}
	}
	return best, best != nil
}

// ActiveForStudent resolves the session a student's connection is scoped to:
// a session the student is enrolled in wins; otherwise the most recently
// started active session, which is the target of the join-request flow.
func (r *Registry) ActiveForStudent(studentID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var enrolled, latest *Session
	for _, s := range r.sessions {
		if !s.Active() {
			continue
		}
		if s.Enrolled(studentID) {
			if enrolled == nil || s.startedAt.After(enrolled.startedAt) {
				enrolled = s
			}
		}
		if latest == nil || s.startedAt.After(latest.startedAt) {
			latest = s
		}
	}
	if enrolled != nil {
		return enrolled, true
	}
	return latest, latest != nil
}

// ApproveJoin decides a pending request: the student is added to the class
// roster through the roster store, then entered into attendance as unset.
// A missing request returns ErrNoPendingRequest for the caller to log; a
// roster store failure restores the request so the teacher can retry.
func (r *Registry) ApproveJoin(ctx context.Context, s *Session, studentID string) (*types.JoinRequest, error) {
	req, err := s.takePending(studentID)
	if err != nil {
		return nil, err
	}

	if err := r.roster.AddStudentToClass(ctx, s.ClassID(), studentID); err != nil {
		s.restorePending(req)
		return nil, err
	}

	s.addApproved(&types.User{
		ID:    req.StudentID,
		Name:  req.StudentName,
		Email: req.StudentEmail,
		Role:  types.RoleStudent,
	})
	r.logger.Info("join request approved",
		zap.String("class_id", s.ClassID()),
		zap.String("student_id", studentID))
	return &req, nil
}

// RejectJoin discards a pending request. No roster change.
func (r *Registry) RejectJoin(s *Session, studentID string) (*types.JoinRequest, error) {
	req, err := s.takePending(studentID)
	if err != nil {
		return nil, err
	}
	r.logger.Info("join request rejected",
		zap.String("class_id", s.ClassID()),
		zap.String("student_id", studentID))
	return &req, nil
}

// End transitions the session to Ended, persists the result through the
// attendance store and releases the class slot so a new start succeeds.
// A persistence failure is logged but still returns the final result;
// clients get their tally either way.
func (r *Registry) End(ctx context.Context, s *Session) (*types.SessionResult, error) {
	result, err := s.end()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	delete(r.sessions, s.ClassID())
	r.mu.Unlock()

	if err := r.store.PersistSessionResult(ctx, result); err != nil {
		r.logger.Error("failed to persist session result",
			zap.String("class_id", s.ClassID()),
			zap.Error(err))
	}

	r.logger.Info("attendance session ended",
		zap.String("class_id", s.ClassID()),
		zap.Int("present", result.Summary.Present),
		zap.Int("absent", result.Summary.Absent),
		zap.Int("total", result.Summary.Total))
	return result, nil
}

// CountActive returns the number of active sessions across all classes.
func (r *Registry) CountActive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if s.Active() {
			n++
		}
	}
	return n
}
