package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/darb-academy/lifecycle-worker/internal/domain/attendance"
	"github.com/darb-academy/lifecycle-worker/internal/domain/demotion"
	"github.com/darb-academy/lifecycle-worker/internal/domain/group"
	"github.com/darb-academy/lifecycle-worker/internal/domain/notification"
	"github.com/darb-academy/lifecycle-worker/internal/domain/progress"
	"github.com/darb-academy/lifecycle-worker/internal/domain/rules"
	"github.com/darb-academy/lifecycle-worker/internal/domain/shared"
	"github.com/darb-academy/lifecycle-worker/internal/domain/student"
	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/external/telegram"
	"github.com/darb-academy/lifecycle-worker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY STORE
// ══════════════════════════════════════════════════════════════════════════════

// memStore implements every repository the jobs use.
type memStore struct {
	mu sync.Mutex

	students   map[string]*student.Student
	attendance []*attendance.Record
	holidays   []attendance.HolidayPeriod
	alerts     map[string]*demotion.Alert
	progress   map[string][]*progress.Record
	groups     map[string]*group.Group

	inserts  int
	failList error
	nextID   int

	// failChunk makes the write of chunk index failChunk return failWrite
	// after earlier chunks were applied. A negative index disables it.
	failChunk int
	failWrite error

	insertChunks  []int
	promoteChunks []int
}

func newMemStore() *memStore {
	return &memStore{
		students: make(map[string]*student.Student),
		alerts:   make(map[string]*demotion.Alert),
		progress: make(map[string][]*progress.Record),
		groups:   make(map[string]*group.Group),

		failChunk: -1,
	}
}

// failAt makes every write fail on chunk index chunk.
func (m *memStore) failAt(chunk int, err error) {
	m.failChunk = chunk
	m.failWrite = err
}

// chunksOf mirrors the store's chunking so fakes honor the configured size.
func chunksOf[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

func (m *memStore) addStudent(id string, t student.RosterType, groupID string) *student.Student {
	s := &student.Student{
		ID:        id,
		FullName:  "Student " + id,
		Type:      t,
		Status:    student.StatusActive,
		GroupID:   groupID,
		GroupName: "Halaqa " + groupID,
	}
	m.students[id] = s
	return s
}

func (m *memStore) addRecord(studentID, date string, status attendance.Status) {
	m.attendance = append(m.attendance, &attendance.Record{
		ID:        fmt.Sprintf("seed-%d", len(m.attendance)),
		StudentID: studentID,
		Date:      date,
		Status:    status,
	})
}

func (m *memStore) records(date string) []*attendance.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*attendance.Record
	for _, r := range m.attendance {
		if r.Date == date {
			out = append(out, r)
		}
	}
	return out
}

// student.Repository

func (m *memStore) List(_ context.Context, filter student.ListFilter) ([]*student.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	var out []*student.Student
	for _, s := range m.students {
		if filter.Matches(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) PromoteBatch(_ context.Context, promotions []student.Promotion, chunkSize int) ([]student.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var applied []student.Promotion
	for i, chunk := range chunksOf(promotions, chunkSize) {
		m.promoteChunks = append(m.promoteChunks, len(chunk))
		if i == m.failChunk {
			return applied, fmt.Errorf("chunk %d: %w", i, m.failWrite)
		}
		for _, p := range chunk {
			s, ok := m.students[p.StudentID]
			if !ok || s.Type != student.RosterReserve {
				continue
			}
			s.Type = student.RosterMain
			s.GroupID = p.ToGroupID
			s.GroupName = p.ToGroupName
			at := p.PromotedAt
			s.PromotedAt = &at
			applied = append(applied, p)
		}
	}
	return applied, nil
}

// attendance.Repository

func (m *memStore) ListByDate(_ context.Context, date string) ([]*attendance.Record, error) {
	return m.records(date), nil
}

func (m *memStore) ListByDateAndStatus(_ context.Context, date string, status attendance.Status) ([]*attendance.Record, error) {
	var out []*attendance.Record
	for _, r := range m.records(date) {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ListInWindow(_ context.Context, w timeutil.Window, statuses ...attendance.Status) ([]*attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*attendance.Record
	for _, r := range m.attendance {
		if !w.Contains(r.Date) {
			continue
		}
		if len(statuses) == 0 || containsStatus(statuses, r.Status) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ListForStudent(_ context.Context, studentID string, w timeutil.Window) ([]*attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*attendance.Record
	for _, r := range m.attendance {
		if r.StudentID == studentID && w.Contains(r.Date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) InsertBatch(_ context.Context, records []*attendance.Record, chunkSize int) ([]*attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var inserted []*attendance.Record
	for i, chunk := range chunksOf(records, chunkSize) {
		m.insertChunks = append(m.insertChunks, len(chunk))
		if i == m.failChunk {
			return inserted, fmt.Errorf("chunk %d: %w", i, m.failWrite)
		}
		for _, rec := range chunk {
			if m.hasRecordLocked(rec.StudentID, rec.Date) {
				continue
			}
			m.nextID++
			cp := *rec
			cp.ID = fmt.Sprintf("att-%d", m.nextID)
			m.attendance = append(m.attendance, &cp)
			inserted = append(inserted, &cp)
			m.inserts++
		}
	}
	return inserted, nil
}

func (m *memStore) hasRecordLocked(studentID, date string) bool {
	for _, r := range m.attendance {
		if r.StudentID == studentID && r.Date == date {
			return true
		}
	}
	return false
}

func containsStatus(list []attendance.Status, s attendance.Status) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// holidays

type memHolidays struct{ store *memStore }

func (h memHolidays) ListCovering(_ context.Context, date string) ([]attendance.HolidayPeriod, error) {
	var out []attendance.HolidayPeriod
	for _, p := range h.store.holidays {
		if p.Covers(date) {
			out = append(out, p)
		}
	}
	return out, nil
}

// demotion.Repository

type memAlerts struct{ store *memStore }

func (a memAlerts) UpsertMerge(_ context.Context, alerts []*demotion.Alert) ([]*demotion.Alert, error) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	out := make([]*demotion.Alert, 0, len(alerts))
	for _, in := range alerts {
		cp := *in
		if existing, ok := a.store.alerts[in.ID]; ok {
			cp.Status = existing.Status
			cp.CreatedAt = existing.CreatedAt
		}
		a.store.alerts[in.ID] = &cp
		stored := cp
		out = append(out, &stored)
	}
	return out, nil
}

// progress.Repository

type memProgress struct{ store *memStore }

func (p memProgress) ListForStudent(_ context.Context, studentID string, w timeutil.Window) ([]*progress.Record, error) {
	var out []*progress.Record
	for _, r := range p.store.progress[studentID] {
		if w.Contains(r.Date) {
			out = append(out, r)
		}
	}
	return out, nil
}

// group.Repository

type memGroups struct{ store *memStore }

func (g memGroups) GetByID(_ context.Context, id string) (*group.Group, error) {
	grp, ok := g.store.groups[id]
	if !ok {
		return nil, shared.ErrGroupNotFound
	}
	return grp, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATORS
// ══════════════════════════════════════════════════════════════════════════════

type staticRules struct {
	cfg rules.Config
	err error
}

func (r staticRules) Load(context.Context) (rules.Config, error) {
	return r.cfg, r.err
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (n *recordingNotifier) Notify(msg notification.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *recordingNotifier) count(t notification.Type) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.msgs {
		if m.Type == t {
			c++
		}
	}
	return c
}

type stubReportSender struct {
	chatID string
	text   string
	calls  int
	err    error
}

func (s *stubReportSender) SendMarkdown(_ context.Context, chatID, text string) (*telegram.SentMessage, error) {
	s.calls++
	s.chatID = chatID
	s.text = text
	if s.err != nil {
		return nil, s.err
	}
	return &telegram.SentMessage{MessageID: 1}, nil
}

// fixedClock returns a Clock pinned to the given academy-local wall time.
func fixedClock(year int, month time.Month, day, hour, minute int) Clock {
	t := time.Date(year, month, day, hour, minute, 0, 0, timeutil.Location())
	return func() time.Time { return t }
}
