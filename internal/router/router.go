package router

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"rollcall/internal/session"
	"rollcall/internal/websocket"
	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

// allowedEvents is the authorization table checked before any dispatch.
// An event missing from a role's set is rejected at the boundary, never
// inside the business logic.
var allowedEvents = map[string]map[string]bool{
	types.RoleTeacher: {
		types.EventGetPendingRequests: true,
		types.EventApproveJoin:        true,
		types.EventRejectJoin:         true,
		types.EventAttendanceMarked:   true,
		types.EventTodaySummary:       true,
		types.EventDone:               true,
	},
	types.RoleStudent: {
		types.EventJoinRequest:  true,
		types.EventMyAttendance: true,
		types.EventGetMyClasses: true,
		types.EventTodaySummary: true,
	},
}

// sessionless events are handled without resolving an active session.
var sessionless = map[string]bool{
	types.EventGetMyClasses: true,
}

// Router maps each inbound event to one state-machine operation and computes
// the outbound fan-out. Application errors never escape Dispatch: every
// failure becomes an ERROR notice unicast to the sender.
type Router struct {
	sessions    *session.Registry
	connections *websocket.Registry
	roster      interfaces.RosterStore
	rateLimiter *RateLimiter
	logger      *zap.Logger
}

// NewRouter creates an event router. All state it touches is injected.
func NewRouter(sessions *session.Registry, connections *websocket.Registry, roster interfaces.RosterStore, logger *zap.Logger) *Router {
	return &Router{
		sessions:    sessions,
		connections: connections,
		roster:      roster,
		rateLimiter: NewRateLimiter(),
		logger:      logger,
	}
}

// Dispatch processes one inbound event from a connection. Events for the
// same session apply in arrival order; events for different sessions are
// independent.
func (r *Router) Dispatch(ctx context.Context, conn *websocket.Connection, ev types.Event) {
	if !r.rateLimiter.Allow(conn.UserID()) {
		r.sendError(conn, ErrRateLimitExceeded.Error())
		return
	}

	if !types.IsClientEvent(ev.Event) {
		r.sendError(conn, ErrUnknownEvent.Error())
		return
	}

	if !allowedEvents[conn.Role()][ev.Event] {
		r.logger.Warn("unauthorized event",
			zap.String("user_id", conn.UserID()),
			zap.String("role", conn.Role()),
			zap.String("event", ev.Event))
		r.sendError(conn, ErrNotAuthorized.Error())
		return
	}

	if sessionless[ev.Event] {
		r.dispatchSessionless(ctx, conn, ev)
		return
	}

	s, ok := r.resolveSession(conn)
	if !ok {
		// Expected transient condition, not a failure: clients query before
		// any session starts.
		r.sendError(conn, NoActiveSessionMessage)
		return
	}

	switch ev.Event {
	case types.EventJoinRequest:
		r.handleJoinRequest(conn, s)
	case types.EventMyAttendance:
		r.handleMyAttendance(conn, s)
	case types.EventGetPendingRequests:
		r.handlePendingRequests(conn, s)
	case types.EventApproveJoin:
		r.handleApproveJoin(ctx, conn, s, ev.Data)
	case types.EventRejectJoin:
		r.handleRejectJoin(conn, s, ev.Data)
	case types.EventAttendanceMarked:
		r.handleMarkAttendance(conn, s, ev.Data)
	case types.EventTodaySummary:
		r.handleSummary(conn, s)
	case types.EventDone:
		r.handleDone(ctx, conn, s)
	}
}

func (r *Router) dispatchSessionless(ctx context.Context, conn *websocket.Connection, ev types.Event) {
	switch ev.Event {
	case types.EventGetMyClasses:
		classes, err := r.roster.ListClassesByStudent(ctx, conn.UserID())
		if err != nil {
			r.logger.Error("failed to list classes", zap.String("user_id", conn.UserID()), zap.Error(err))
			r.sendError(conn, "could not load classes")
			return
		}
		payload := types.MyClassesPayload{Classes: make([]types.Class, 0, len(classes))}
		for _, c := range classes {
			payload.Classes = append(payload.Classes, *c)
		}
		r.unicast(conn, types.EventMyClasses, payload)
	}
}

// resolveSession finds the session a connection is scoped to: the session
// the teacher started, or for students the session of an enrolled class,
// falling back to the most recent active session (the join target).
func (r *Router) resolveSession(conn *websocket.Connection) (*session.Session, bool) {
	if conn.Role() == types.RoleTeacher {
		return r.sessions.ActiveForTeacher(conn.UserID())
	}
	return r.sessions.ActiveForStudent(conn.UserID())
}

func (r *Router) handleJoinRequest(conn *websocket.Connection, s *session.Session) {
	user := conn.User()
	status, isNew := s.RequestJoin(&user)
	r.unicast(conn, types.EventJoinResponse, types.JoinResponsePayload{Status: status})

	// The teacher is notified once per request. A retained request stays
	// queryable via GET_PENDING_REQUESTS when the teacher is offline.
	if isNew {
		if teacher, ok := r.connections.Get(s.TeacherID()); ok {
			pending := s.PendingRequests()
			for _, req := range pending {
				if req.StudentID == user.ID {
					r.unicast(teacher, types.EventNewJoinRequest, types.NewJoinRequestPayload{Student: req})
					break
				}
			}
		}
	}
}

func (r *Router) handleMyAttendance(conn *websocket.Connection, s *session.Session) {
	status, ok := s.StatusOf(conn.UserID())
	if !ok {
		status = types.StatusUnset
	}
	r.unicast(conn, types.EventMyAttendance, types.MyAttendancePayload{Status: status})
}

func (r *Router) handlePendingRequests(conn *websocket.Connection, s *session.Session) {
	r.unicast(conn, types.EventPendingRequests, types.PendingRequestsPayload{Requests: s.PendingRequests()})
}

func (r *Router) handleApproveJoin(ctx context.Context, conn *websocket.Connection, s *session.Session, data json.RawMessage) {
	var payload types.JoinDecisionPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.StudentID == "" {
		r.sendError(conn, ErrMalformedPayload.Error())
		return
	}

	req, err := r.sessions.ApproveJoin(ctx, s, payload.StudentID)
	if err != nil {
		if errors.Is(err, session.ErrNoPendingRequest) {
			// No-op: nothing to approve, nobody to notify.
			r.logger.Debug("approve for unknown join request",
				zap.String("class_id", s.ClassID()),
				zap.String("student_id", payload.StudentID))
			return
		}
		r.logger.Error("join approval failed", zap.String("student_id", payload.StudentID), zap.Error(err))
		r.sendError(conn, "could not approve join request")
		return
	}

	if student, ok := r.connections.Get(req.StudentID); ok {
		r.unicast(student, types.EventJoinApproved, types.JoinApprovedPayload{ClassName: s.ClassName()})
	}
	r.unicast(conn, types.EventStudentAdded, nil)
}

func (r *Router) handleRejectJoin(conn *websocket.Connection, s *session.Session, data json.RawMessage) {
	var payload types.JoinDecisionPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.StudentID == "" {
		r.sendError(conn, ErrMalformedPayload.Error())
		return
	}

	req, err := r.sessions.RejectJoin(s, payload.StudentID)
	if err != nil {
		// Same silent no-op contract as approval.
		return
	}
	if student, ok := r.connections.Get(req.StudentID); ok {
		r.unicast(student, types.EventJoinRejected, nil)
	}
}

func (r *Router) handleMarkAttendance(conn *websocket.Connection, s *session.Session, data json.RawMessage) {
	var payload types.MarkAttendancePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.StudentID == "" {
		r.sendError(conn, ErrMalformedPayload.Error())
		return
	}

	if err := s.MarkAttendance(payload.StudentID, payload.Status); err != nil {
		r.sendError(conn, err.Error())
		return
	}

	r.broadcast(s, types.EventAttendanceMarked, types.AttendanceMarkedPayload{
		StudentID: payload.StudentID,
		Status:    payload.Status,
	})
}

func (r *Router) handleSummary(conn *websocket.Connection, s *session.Session) {
	tally := s.Summary()
	r.unicast(conn, types.EventTodaySummary, tally)
}

func (r *Router) handleDone(ctx context.Context, conn *websocket.Connection, s *session.Session) {
	// Recipients are captured before End releases the class slot; once the
	// session leaves the registry no connection resolves to it anymore.
	recipients := r.sessionRecipients(s)

	result, err := r.sessions.End(ctx, s)
	if err != nil {
		r.sendError(conn, err.Error())
		return
	}

	payload := types.DonePayload{Tally: result.Summary, Message: "Attendance recorded"}
	r.fanOut(recipients, types.EventDone, payload)
}

// sessionRecipients computes the current participant set of a session: the
// teacher plus every connected student scoped to it.
func (r *Router) sessionRecipients(s *session.Session) []*websocket.Connection {
	var out []*websocket.Connection
	if teacher, ok := r.connections.Get(s.TeacherID()); ok {
		out = append(out, teacher)
	}
	for _, conn := range r.connections.Students() {
		if scoped, ok := r.sessions.ActiveForStudent(conn.UserID()); ok && scoped == s {
			out = append(out, conn)
		}
	}
	return out
}

// broadcast sends an event to all current participants of a session.
func (r *Router) broadcast(s *session.Session, name string, payload interface{}) {
	r.fanOut(r.sessionRecipients(s), name, payload)
}

// BroadcastSessionStarted pushes the session-active notice to every live
// connection. Students not yet enrolled see the notice too; it is what
// invites the join-request flow.
func (r *Router) BroadcastSessionStarted(s *session.Session) {
	r.fanOut(r.connections.All(), types.EventSessionInfo, s.Info())
}

func (r *Router) fanOut(recipients []*websocket.Connection, name string, payload interface{}) {
	ev, err := types.NewEvent(name, payload)
	if err != nil {
		r.logger.Error("failed to encode event", zap.String("event", name), zap.Error(err))
		return
	}
	// Delivery continues past individual failures; a dead connection only
	// misses its own copy.
	for _, conn := range recipients {
		if err := conn.Send(ev); err != nil {
			r.logger.Debug("event delivery failed",
				zap.String("event", name),
				zap.String("user_id", conn.UserID()),
				zap.Error(err))
		}
	}
}

func (r *Router) unicast(conn *websocket.Connection, name string, payload interface{}) {
	ev, err := types.NewEvent(name, payload)
	if err != nil {
		r.logger.Error("failed to encode event", zap.String("event", name), zap.Error(err))
		return
	}
	if err := conn.Send(ev); err != nil {
		r.logger.Debug("event delivery failed",
			zap.String("event", name),
			zap.String("user_id", conn.UserID()),
			zap.Error(err))
	}
}

func (r *Router) sendError(conn *websocket.Connection, message string) {
	r.unicast(conn, types.EventError, types.ErrorPayload{Message: message})
}
