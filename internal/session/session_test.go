package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

// Mock roster store for testing
type mockRosterStore struct {
	mu      sync.RWMutex
	classes map[string]*types.Class
	rosters map[string][]*types.User

	shouldFailRoster bool
	shouldFailAdd    bool
}

func newMockRosterStore() *mockRosterStore {
	return &mockRosterStore{
		classes: make(map[string]*types.Class),
		rosters: make(map[string][]*types.User),
	}
}

func (m *mockRosterStore) CreateClass(ctx context.Context, class *types.Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[class.ID] = class
	return nil
}

func (m *mockRosterStore) GetClass(ctx context.Context, classID string) (*types.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	class, ok := m.classes[classID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return class, nil
}

func (m *mockRosterStore) ListClassesByTeacher(ctx context.Context, teacherID string) ([]*types.Class, error) {
	return nil, nil
}

func (m *mockRosterStore) ListClassesByStudent(ctx context.Context, studentID string) ([]*types.Class, error) {
	return nil, nil
}

func (m *mockRosterStore) GetRoster(ctx context.Context, classID string) ([]*types.User, error) {
	if m.shouldFailRoster {
		return nil, errors.New("roster lookup failed")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rosters[classID], nil
}

func (m *mockRosterStore) AddStudentToClass(ctx context.Context, classID, studentID string) error {
	if m.shouldFailAdd {
		return errors.New("enrollment write failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rosters[classID] = append(m.rosters[classID], &types.User{ID: studentID, Role: types.RoleStudent})
	return nil
}

// Mock attendance store for testing
type mockAttendanceStore struct {
	mu      sync.Mutex
	results []*types.SessionResult

	shouldFailPersist bool
}

func (m *mockAttendanceStore) PersistSessionResult(ctx context.Context, result *types.SessionResult) error {
	if m.shouldFailPersist {
		return errors.New("persist failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
	return nil
}

func (m *mockAttendanceStore) GetClassAttendance(ctx context.Context, classID string) (*types.SessionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.results) - 1; i >= 0; i-- {
		if m.results[i].ClassID == classID {
			return m.results[i], nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (m *mockAttendanceStore) HasAttendance(ctx context.Context, classID string) (bool, error) {
	_, err := m.GetClassAttendance(ctx, classID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func testRegistry(t *testing.T) (*Registry, *mockRosterStore, *mockAttendanceStore) {
	t.Helper()
	roster := newMockRosterStore()
	store := &mockAttendanceStore{}
	return NewRegistry(roster, store, zap.NewNop()), roster, store
}

func seedClass(roster *mockRosterStore, classID string, studentIDs ...string) *types.Class {
	class := &types.Class{ID: classID, Name: "Math 101", TeacherID: "teacher-1"}
	roster.classes[classID] = class
	for _, id := range studentIDs {
		roster.rosters[classID] = append(roster.rosters[classID], &types.User{
			ID:    id,
			Name:  "Student " + id,
			Email: id + "@school.edu",
			Role:  types.RoleStudent,
		})
	}
	return class
}

func TestStartSeedsRosterAsUnset(t *testing.T) {
	registry, roster, _ := testRegistry(t)
	class := seedClass(roster, "class-1", "s1", "s2")

	s, err := registry.Start(context.Background(), class)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for _, id := range []string{"s1", "s2"} {
		status, ok := s.StatusOf(id)
		if !ok {
			t.Fatalf("expected %s to be enrolled", id)
		}
		if status != types.StatusUnset {
			t.Errorf("expected %s unset, got %q", id, status)
		}
	}
	tally := s.Summary()
	if tally.Present != 0 || tally.Absent != 0 || tally.Total != 2 {
		t.Errorf("unexpected initial tally: %+v", tally)
	}
}

func TestStartConflictLeavesExistingSessionUntouched(t *testing.T) {
	registry, roster, _ := testRegistry(t)
	class := seedClass(roster, "class-1", "s1")

	first, err := registry.Start(context.Background(), class)
	if err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := first.MarkAttendance("s1", types.StatusPresent); err != nil {
		t.Fatalf("MarkAttendance failed: %v", err)
	}

	if _, err := registry.Start(context.Background(), class); !errors.Is(err, ErrSessionConflict) {
		t.Fatalf("expected ErrSessionConflict, got %v", err)
	}

	active, ok := registry.Active("class-1")
	if !ok || active != first {
		t.Fatal("conflict must leave the first session registered")
	}
	if status, _ := active.StatusOf("s1"); status != types.StatusPresent {
		t.Errorf("existing session state changed: got %q", status)
	}
}

func TestStartFailsWhenRosterUnavailable(t *testing.T) {
	registry, roster, _ := testRegistry(t)
	class := seedClass(roster, "class-1", "s1")
	roster.shouldFailRoster = true

	if _, err := registry.Start(context.Background(), class); err == nil {
		t.Fatal("expected roster failure to propagate")
	}
	if registry.CountActive() != 0 {
		t.Error("failed start must not register a session")
	}
}

func TestMarkAttendanceIdempotentAndLastWriteWins(t *testing.T) {
	registry, roster, _ := testRegistry(t)
	class := seedClass(roster, "class-1", "s1", "s2")
	s, _ := registry.Start(context.Background(), class)

	if err := s.MarkAttendance("s1", types.StatusPresent); err != nil {
		t.Fatalf("first mark failed: %v", err)
	}
	if err := s.MarkAttendance("s1", types.StatusPresent); err != nil {
		t.Fatalf("repeated mark failed: %v", err)
	}
	tally := s.Summary()
	if tally.Present != 1 {
		t.Errorf("repeated mark must not double-count: %+v", tally)
	}

	if err := s.MarkAttendance("s1", types.StatusAbsent); err != nil {
		t.Fatalf("re-mark failed: %v", err)
	}
	if status, _ := s.StatusOf("s1"); status != types.StatusAbsent {
		t.Errorf("expected last write to win, got %q", status)
	}
}

func TestMarkAttendanceRejectsInvalidInput(t *testing.T) {
	registry, roster, _ := testRegistry(t)
	class := seedClass(roster, "class-1", "s1")
	s, _ := registry.Start(context.Background(), class)

	tests := []struct {
		name      string
		studentID string
		status    string
		wantErr   error
	}{
		{"unknown status", "s1", "late", ErrInvalidStatus},
		{"unset is not a teacher mark", "s1", types.StatusUnset, ErrInvalidStatus},
		{"not enrolled", "s9", types.StatusPresent, ErrNotEnrolled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.MarkAttendance(tt.studentID, tt.status); !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSummaryInvariant(t *testing.T) {
	registry, roster, _ := testRegistry(t)
	class := seedClass(roster, "class-1", "s1", "s2", "s3")
	s, _ := registry.Start(context.Background(), class)

	_ = s.MarkAttendance("s1", types.StatusPresent)
	_ = s.MarkAttendance("s2", types.StatusAbsent)

	tally := s.Summary()
	if tally.Present+tally.Absent > tally.Total {
		t.Errorf("present+absent must not exceed total: %+v", tally)
	}
	if tally.Total != 3 {
		t.Errorf("total must equal attendance size, got %d", tally.Total)
	}
	if tally.Present != 1 || tally.Absent != 1 {
		t.Errorf("unexpected tally: %+v", tally)
	}
}

func TestRequestJoinDeduplicatesPending(t *testing.T) {
	registry, roster, _ := testRegistry(t)
	class := seedClass(roster, "class-1", "s1")
	s, _ := registry.Start(context.Background(), class)

	joiner := &types.User{ID: "s3", Name: "Student s3", Email: "s3@school.edu", Role: types.RoleStudent}

	status, isNew := s.RequestJoin(joiner)
	if status != types.JoinPending || !isNew {
		t.Fatalf("first request: got (%q, %v), want (pending, true)", status, isNew)
	}

	status, isNew = s.RequestJoin(joiner)
	if status != types.JoinPending || isNew {
		t.Fatalf("repeat request: got (%q, %v), want (pending, false)", status, isNew)
	}
	if got := len(s.PendingRequests()); got != 1 {
		t.Errorf("expected a single pending entry, got %d", got)
	}

	status, isNew = s.RequestJoin(&types.User{ID: "s1", Role: types.RoleStudent})
	if status != types.JoinAlreadyEnrolled || isNew {
		t.Errorf("enrolled student: got (%q, %v), want (already_enrolled, false)", status, isNew)
	}
}

func TestApproveJoinEnrollsStudent(t *testing.T) {
	registry, roster, _ := testRegistry(t)
	class := seedClass(roster, "class-1", "s1")
	s, _ := registry.Start(context.Background(), class)

	joiner := &types.User{ID: "s3", Name: "Student s3", Email: "s3@school.edu", Role: types.RoleStudent}
	s.RequestJoin(joiner)

	req, err := registry.ApproveJoin(context.Background(), s, "s3")
	if err != nil {
		t.Fatalf("ApproveJoin failed: %v", err)
	}
	if req.StudentID != "s3" {
		t.Errorf("unexpected request returned: %+v", req)
	}

	if !s.Enrolled("s3") {
		t.Error("approved student must get an attendance entry")
	}
	if status, _ := s.StatusOf("s3"); status != types.StatusUnset {
		t.Errorf("approved student starts unset, got %q", status)
	}
	if got := s.Summary().Total; got != 2 {
		t.Errorf("total must grow by one, got %d", got)
	}
	if len(s.PendingRequests()) != 0 {
		t.Error("decided request must leave the pending list")
	}

	enrolled, _ := roster.GetRoster(context.Background(), "class-1")
	if len(enrolled) != 2 {
		t.Errorf("roster store must record the enrollment, got %d entries", len(enrolled))
	}
}

func TestApproveJoinWithoutPendingRequestIsNoOp(t *testing.T) {
	registry, roster, _ := testRegistry(t)
	class := seedClass(roster, "class-1", "s1")
	s, _ := registry.Start(context.Background(), class)

	if _, err := registry.ApproveJoin(context.Background(), s, "ghost"); !errors.Is(err, ErrNoPendingRequest) {
		t.Fatalf("expected ErrNoPendingRequest, got %v", err)
	}
	if s.Summary().Total != 1 {
		t.Error("no-op approval must not change attendance")
	}
	enrolled, _ := roster.GetRoster(context.Background(), "class-1")
	if len(enrolled) != 1 {
		t.Error("no-op approval must not change the roster")
	}
}

func TestApproveJoinRestoresRequestOnStoreFailure(t *testing.T) {
	registry, roster, _ := testRegistry(t)
	class := seedClass(roster, "class-1", "s1")
	s, _ := registry.Start(context.Background(), class)
	s.RequestJoin(&types.User{ID: "s3", Role: types.RoleStudent})

	roster.shouldFailAdd = true
	if _, err := registry.ApproveJoin(context.Background(), s, "s3"); err == nil {
		t.Fatal("expected enrollment failure to propagate")
	}
	if len(s.PendingRequests()) != 1 {
		t.Error("failed approval must restore the pending request")
	}
	if s.Enrolled("s3") {
		t.Error("failed approval must not enroll the student")
	}
}

func TestRejectJoinDiscardsRequestOnly(t *testing.T) {
	registry, roster, _ := testRegistry(t)
	class := seedClass(roster, "class-1", "s1")
	s, _ := registry.Start(context.Background(), class)
	s.RequestJoin(&types.User{ID: "s3", Role: types.RoleStudent})

	if _, err := registry.RejectJoin(s, "s3"); err != nil {
		t.Fatalf("RejectJoin failed: %v", err)
	}
	if len(s.PendingRequests()) != 0 {
		t.Error("rejected request must leave the pending list")
	}
	if s.Enrolled("s3") {
		t.Error("rejection must not enroll the student")
	}

	if _, err := registry.RejectJoin(s, "s3"); !errors.Is(err, ErrNoPendingRequest) {
		t.Errorf("repeat rejection: got %v, want ErrNoPendingRequest", err)
	}
}

func TestEndPersistsResultAndReleasesClass(t *testing.T) {
	registry, roster, store := testRegistry(t)
	class := seedClass(roster, "class-1", "s1", "s2")
	s, _ := registry.Start(context.Background(), class)
	_ = s.MarkAttendance("s1", types.StatusPresent)
	s.RequestJoin(&types.User{ID: "s3", Role: types.RoleStudent})

	result, err := registry.End(context.Background(), s)
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}

	if result.Summary.Present != 1 || result.Summary.Absent != 0 || result.Summary.Total != 2 {
		t.Errorf("unexpected final tally: %+v", result.Summary)
	}
	if len(result.Records) != 2 {
		t.Errorf("expected 2 records, got %d", len(result.Records))
	}
	if s.Active() {
		t.Error("ended session must not be active")
	}
	if len(s.PendingRequests()) != 0 {
		t.Error("ending must discard undecided requests")
	}
	if len(store.results) != 1 {
		t.Errorf("result must be persisted once, got %d", len(store.results))
	}

	// The class slot is free again.
	if _, err := registry.Start(context.Background(), class); err != nil {
		t.Errorf("restart after end failed: %v", err)
	}
}

func TestEndTwiceFails(t *testing.T) {
	registry, roster, _ := testRegistry(t)
	class := seedClass(roster, "class-1", "s1")
	s, _ := registry.Start(context.Background(), class)

	if _, err := registry.End(context.Background(), s); err != nil {
		t.Fatalf("first End failed: %v", err)
	}
	if _, err := registry.End(context.Background(), s); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("second End: got %v, want ErrSessionEnded", err)
	}
}

func TestEndReturnsResultWhenPersistFails(t *testing.T) {
	registry, roster, store := testRegistry(t)
	class := seedClass(roster, "class-1", "s1")
	s, _ := registry.Start(context.Background(), class)
	store.shouldFailPersist = true

	result, err := registry.End(context.Background(), s)
	if err != nil {
		t.Fatalf("End must survive a persistence failure: %v", err)
	}
	if result == nil || result.Summary.Total != 1 {
		t.Errorf("clients still get their tally: %+v", result)
	}
}

func TestMarkAfterEndFails(t *testing.T) {
	registry, roster, _ := testRegistry(t)
	class := seedClass(roster, "class-1", "s1")
	s, _ := registry.Start(context.Background(), class)
	_, _ = registry.End(context.Background(), s)

	if err := s.MarkAttendance("s1", types.StatusPresent); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("got %v, want ErrSessionEnded", err)
	}
}

func TestActiveForStudentPrefersEnrollment(t *testing.T) {
	registry, roster, _ := testRegistry(t)
	classA := seedClass(roster, "class-a", "s1")
	classB := &types.Class{ID: "class-b", Name: "History", TeacherID: "teacher-2"}
	roster.classes["class-b"] = classB
	roster.rosters["class-b"] = []*types.User{{ID: "s2", Role: types.RoleStudent}}

	sa, _ := registry.Start(context.Background(), classA)
	sb, _ := registry.Start(context.Background(), classB)

	if got, ok := registry.ActiveForStudent("s1"); !ok || got != sa {
		t.Error("enrolled session must win for s1")
	}
	if got, ok := registry.ActiveForStudent("s2"); !ok || got != sb {
		t.Error("enrolled session must win for s2")
	}

	// An unenrolled student is scoped to the latest active session, the
	// target of the join-request flow.
	if got, ok := registry.ActiveForStudent("s9"); !ok || got != sb {
		t.Error("unenrolled student must fall back to the latest session")
	}
}

func TestActiveForTeacher(t *testing.T) {
	registry, roster, _ := testRegistry(t)
	class := seedClass(roster, "class-1", "s1")
	s, _ := registry.Start(context.Background(), class)

	if got, ok := registry.ActiveForTeacher("teacher-1"); !ok || got != s {
		t.Error("teacher must resolve to their own session")
	}
	if _, ok := registry.ActiveForTeacher("teacher-2"); ok {
		t.Error("teacher without a session must resolve to none")
	}

	_, _ = registry.End(context.Background(), s)
	if _, ok := registry.ActiveForTeacher("teacher-1"); ok {
		t.Error("ended session must not resolve")
	}
}

func TestConcurrentMarksKeepInvariant(t *testing.T) {
	registry, roster, _ := testRegistry(t)
	ids := []string{"s1", "s2", "s3", "s4", "s5"}
	class := seedClass(roster, "class-1", ids...)
	s, _ := registry.Start(context.Background(), class)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := types.StatusPresent
			if i%2 == 0 {
				status = types.StatusAbsent
			}
			_ = s.MarkAttendance(ids[i%len(ids)], status)
		}(i)
	}
	wg.Wait()

	tally := s.Summary()
	if tally.Total != len(ids) {
		t.Errorf("total drifted under concurrency: %+v", tally)
	}
	if tally.Present+tally.Absent != len(ids) {
		t.Errorf("every student was marked, tally disagrees: %+v", tally)
	}
}
