package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

// Manager is the SQLite-backed implementation of UserStore, RosterStore and
// AttendanceStore. Writes funnel through a single goroutine: SQLite allows
// one writer, and serializing here keeps busy-timeouts out of the hot path.
// Reads run concurrently on the connection pool.
type Manager struct {
	db           *sql.DB
	logger       *zap.Logger
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas and schema, and starts the
// writer goroutine.
func NewManager(path string, logger *zap.Logger) (*Manager, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	m := &Manager{
		db:           db,
		logger:       logger,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}
	m.wg.Add(1)
	go m.writeLoop()
	return m, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()
	for {
		select {
		case op := <-m.writeChannel:
			op.result <- op.operation(m.db)
		case <-m.shutdown:
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// --- UserStore ---

// CreateUser inserts an account with its password hash.
func (m *Manager) CreateUser(ctx context.Context, user *types.User, passwordHash string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO users (id, name, email, role, password_hash) VALUES (?, ?, ?, ?, ?)`,
			user.ID, user.Name, user.Email, user.Role, passwordHash)
		if err != nil {
			if isUniqueViolation(err) {
				return interfaces.ErrAlreadyExists
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

// GetUserByEmail returns the account and its password hash for login.
func (m *Manager) GetUserByEmail(ctx context.Context, email string) (*types.User, string, error) {
	var user types.User
	var hash string
	err := m.db.QueryRowContext(ctx,
		`SELECT id, name, email, role, password_hash FROM users WHERE email = ?`, email).
		Scan(&user.ID, &user.Name, &user.Email, &user.Role, &hash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, "", interfaces.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to query user: %w", err)
	}
	return &user, hash, nil
}

// GetUser returns an account by ID.
func (m *Manager) GetUser(ctx context.Context, userID string) (*types.User, error) {
	var user types.User
	err := m.db.QueryRowContext(ctx,
		`SELECT id, name, email, role FROM users WHERE id = ?`, userID).
		Scan(&user.ID, &user.Name, &user.Email, &user.Role)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// ListStudents returns all student accounts.
func (m *Manager) ListStudents(ctx context.Context) ([]*types.User, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, name, email, role FROM users WHERE role = ? ORDER BY name`, types.RoleStudent)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanUsers(rows)
}

// --- RosterStore ---

// CreateClass inserts a class resource.
func (m *Manager) CreateClass(ctx context.Context, class *types.Class) error {
	if class.ID == "" {
		class.ID = uuid.New().String()
	}
	if class.CreatedAt.IsZero() {
		class.CreatedAt = time.Now()
	}
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO classes (id, name, teacher_id, created_at) VALUES (?, ?, ?, ?)`,
			class.ID, class.Name, class.TeacherID, class.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert class: %w", err)
		}
		return nil
	})
}

// GetClass returns a class by ID.
func (m *Manager) GetClass(ctx context.Context, classID string) (*types.Class, error) {
	var class types.Class
	err := m.db.QueryRowContext(ctx,
		`SELECT id, name, teacher_id, created_at FROM classes WHERE id = ?`, classID).
		Scan(&class.ID, &class.Name, &class.TeacherID, &class.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query class: %w", err)
	}
	return &class, nil
}

// ListClassesByTeacher returns classes owned by a teacher.
func (m *Manager) ListClassesByTeacher(ctx context.Context, teacherID string) ([]*types.Class, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, name, teacher_id, created_at FROM classes WHERE teacher_id = ? ORDER BY created_at`, teacherID)
	if err != nil {
		return nil, fmt.Errorf("failed to query classes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanClasses(rows)
}

// ListClassesByStudent returns classes a student is enrolled in.
func (m *Manager) ListClassesByStudent(ctx context.Context, studentID string) ([]*types.Class, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.teacher_id, c.created_at
		 FROM classes c JOIN enrollments e ON e.class_id = c.id
		 WHERE e.student_id = ? ORDER BY c.created_at`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrolled classes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanClasses(rows)
}

// GetRoster returns the students currently enrolled in a class.
func (m *Manager) GetRoster(ctx context.Context, classID string) ([]*types.User, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT u.id, u.name, u.email, u.role
		 FROM users u JOIN enrollments e ON e.student_id = u.id
		 WHERE e.class_id = ? ORDER BY u.name`, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to query roster: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanUsers(rows)
}

// AddStudentToClass enrolls a student. Enrolling twice is a no-op.
func (m *Manager) AddStudentToClass(ctx context.Context, classID, studentID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO enrollments (class_id, student_id) VALUES (?, ?)`,
			classID, studentID)
		if err != nil {
			return fmt.Errorf("failed to enroll student: %w", err)
		}
		return nil
	})
}

// --- AttendanceStore ---

// PersistSessionResult writes a completed session and its per-student
// records in one transaction.
func (m *Manager) PersistSessionResult(ctx context.Context, result *types.SessionResult) error {
	return m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		sessionID := uuid.New().String()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO attendance_sessions (id, class_id, class_name, started_at, ended_at, present, absent, total)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, result.ClassID, result.ClassName, result.StartedAt, result.EndedAt,
			result.Summary.Present, result.Summary.Absent, result.Summary.Total)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}

		for _, record := range result.Records {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO attendance_records (session_id, student_id, student_name, student_email, status)
				 VALUES (?, ?, ?, ?, ?)`,
				sessionID, record.StudentID, record.StudentName, record.StudentEmail, record.Status)
			if err != nil {
				return fmt.Errorf("failed to insert record: %w", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit session result: %w", err)
		}
		return nil
	})
}

// GetClassAttendance returns the most recent completed session for a class
// with its per-student records.
func (m *Manager) GetClassAttendance(ctx context.Context, classID string) (*types.SessionResult, error) {
	var sessionID string
	result := &types.SessionResult{ClassID: classID}
	err := m.db.QueryRowContext(ctx,
		`SELECT id, class_name, started_at, ended_at, present, absent, total
		 FROM attendance_sessions WHERE class_id = ? ORDER BY ended_at DESC LIMIT 1`, classID).
		Scan(&sessionID, &result.ClassName, &result.StartedAt, &result.EndedAt,
			&result.Summary.Present, &result.Summary.Absent, &result.Summary.Total)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT student_id, student_name, student_email, status
		 FROM attendance_records WHERE session_id = ? ORDER BY student_name`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var record types.AttendanceRecord
		if err := rows.Scan(&record.StudentID, &record.StudentName, &record.StudentEmail, &record.Status); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		result.Records = append(result.Records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return result, nil
}

// HasAttendance reports whether a class has any completed session.
func (m *Manager) HasAttendance(ctx context.Context, classID string) (bool, error) {
	var n int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM attendance_sessions WHERE class_id = ?`, classID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n > 0, nil
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Close stops the writer and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()
	return m.db.Close()
}

func scanUsers(rows *sql.Rows) ([]*types.User, error) {
	var users []*types.User
	for rows.Next() {
		var user types.User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.Role); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func scanClasses(rows *sql.Rows) ([]*types.Class, error) {
	var classes []*types.Class
	for rows.Next() {
		var class types.Class
		if err := rows.Scan(&class.ID, &class.Name, &class.TeacherID, &class.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan class: %w", err)
		}
		classes = append(classes, &class)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating classes: %w", err)
	}
	return classes, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
