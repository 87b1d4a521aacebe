package types

import "regexp"

// Compiled once; IDs are validated on every connection attempt.
var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidUserID checks if a user ID meets format requirements.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidRole reports whether role is one of the two connection roles.
func IsValidRole(role string) bool {
	return role == RoleTeacher || role == RoleStudent
}

// IsValidMark reports whether status is a teacher-assignable attendance mark.
// StatusUnset is the initial state only; it cannot be assigned explicitly.
func IsValidMark(status string) bool {
	return status == StatusPresent || status == StatusAbsent
}

// IsClientEvent reports whether name is an event a client may send.
func IsClientEvent(name string) bool {
	switch name {
	case EventJoinRequest, EventMyAttendance, EventGetMyClasses,
		EventGetPendingRequests, EventApproveJoin, EventRejectJoin,
		EventAttendanceMarked, EventTodaySummary, EventDone:
		return true
	default:
		return false
	}
}
