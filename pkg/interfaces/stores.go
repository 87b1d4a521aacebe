package interfaces

import (
	"context"

	"rollcall/pkg/types"
)

// UserStore resolves and manages authenticated accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *types.User, passwordHash string) error
	GetUserByEmail(ctx context.Context, email string) (*types.User, string, error)
	GetUser(ctx context.Context, userID string) (*types.User, error)
	ListStudents(ctx context.Context) ([]*types.User, error)
}

// RosterStore owns class resources and enrollment. The session core only
// calls GetRoster and AddStudentToClass; the rest serves the REST surface.
type RosterStore interface {
	CreateClass(ctx context.Context, class *types.Class) error
	GetClass(ctx context.Context, classID string) (*types.Class, error)
	ListClassesByTeacher(ctx context.Context, teacherID string) ([]*types.Class, error)
	ListClassesByStudent(ctx context.Context, studentID string) ([]*types.Class, error)
	GetRoster(ctx context.Context, classID string) ([]*types.User, error)
	AddStudentToClass(ctx context.Context, classID, studentID string) error
}

// AttendanceStore persists completed session results. In-progress session
// state lives only in memory; this is written once, at session end.
type AttendanceStore interface {
	PersistSessionResult(ctx context.Context, result *types.SessionResult) error
	GetClassAttendance(ctx context.Context, classID string) (*types.SessionResult, error)
	HasAttendance(ctx context.Context, classID string) (bool, error)
}
