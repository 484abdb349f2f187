package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CrowderSoup/taskcollab/models"
)

var (
	ErrMissingID    = errors.New("task has no identifier")
	ErrEmptyComment = errors.New("comment text is required")
)

// TaskAPI is the subset of the transport client the task store needs.
type TaskAPI interface {
	GetTasks(ctx context.Context, filters models.Filters) ([]models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	CreateTask(ctx context.Context, draft models.TaskDraft) (*models.Task, error)
	UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
	AddComment(ctx context.Context, id, text string) (*models.Task, error)
}

// TaskStore is the synchronization core: it merges optimistic local edits,
// server confirmations and pushed events into one ordered task collection.
// Whichever of those arrives last wins.
type TaskStore struct {
	notifier

	api TaskAPI
	now func() time.Time

	mu       sync.RWMutex
	tasks    []models.Task
	filters  models.Filters
	fetchSeq uint64
	req      requestState
}

// NewTaskStore creates an empty task store using api.
func NewTaskStore(api TaskAPI) *TaskStore {
	return &TaskStore{api: api, now: time.Now, tasks: []models.Task{}}
}

func cloneTasks(in []models.Task) []models.Task {
	out := make([]models.Task, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}

// indexOf must be called with s.mu held.
func (s *TaskStore) indexOf(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// Tasks returns a copy of the collection in store order.
func (s *TaskStore) Tasks() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTasks(s.tasks)
}

// Task returns a copy of the task with id, if loaded.
func (s *TaskStore) Task(id string) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.tasks[i].Clone(), true
	}
	return models.Task{}, false
}

// Loading reports whether any task request is in flight.
func (s *TaskStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.req.inflight > 0
}

// Err is the message of the last failed request, or "".
func (s *TaskStore) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.req.err
}

// ClearError drops the recorded error.
func (s *TaskStore) ClearError() {
	s.mu.Lock()
	s.req.err = ""
	s.mu.Unlock()
	s.changed()
}

// Filters returns the active filter set.
func (s *TaskStore) Filters() models.Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

// SetFilters records the active filter set and fetches with it. Filtering
// always happens on the server.
func (s *TaskStore) SetFilters(ctx context.Context, f models.Filters) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.filters = f
	s.mu.Unlock()
	s.changed()
	return s.Fetch(ctx, f)
}

// Fetch replaces the whole collection with the server's result for f,
// discarding any optimistic state. On failure the collection is kept and the
// error recorded. A result that arrives after a newer Fetch was issued is
// dropped and ErrSuperseded returned.
func (s *TaskStore) Fetch(ctx context.Context, f models.Filters) error {
	s.mu.Lock()
	s.fetchSeq++
	seq := s.fetchSeq
	s.req.begin()
	s.mu.Unlock()
	s.changed()

	tasks, err := s.api.GetTasks(ctx, f)

	s.mu.Lock()
	if seq != s.fetchSeq {
		s.req.end(nil)
		s.mu.Unlock()
		s.changed()
		slog.Debug("dropping stale task fetch", "seq", seq)
		return ErrSuperseded
	}
	s.req.end(err)
	if err == nil {
		s.tasks = cloneTasks(tasks)
	}
	s.mu.Unlock()
	s.changed()
	return err
}

// resync is the recovery path after a rejected optimistic change.
func (s *TaskStore) resync(ctx context.Context) {
	err := s.Fetch(context.WithoutCancel(ctx), s.Filters())
	if err != nil && !errors.Is(err, ErrSuperseded) {
		slog.Warn("task resync failed", "err", err)
	}
}

// Get loads one task and merges it into the collection if present.
func (s *TaskStore) Get(ctx context.Context, id string) (models.Task, error) {
	s.mu.Lock()
	s.req.begin()
	s.mu.Unlock()

	task, err := s.api.GetTask(ctx, id)

	s.mu.Lock()
	s.req.end(err)
	s.mu.Unlock()
	if err != nil {
		s.changed()
		return models.Task{}, err
	}
	if !s.OptimisticUpdate(*task) {
		s.changed()
	}
	return task.Clone(), nil
}

// Create submits draft and, once the server has assigned an identifier,
// puts the returned task at the front of the collection. Nothing is shown
// before confirmation.
func (s *TaskStore) Create(ctx context.Context, draft models.TaskDraft) (models.Task, error) {
	if err := draft.Validate(); err != nil {
		return models.Task{}, err
	}

	s.mu.Lock()
	s.req.begin()
	s.mu.Unlock()
	s.changed()

	task, err := s.api.CreateTask(ctx, draft)
	if err == nil && task.ID == "" {
		err = ErrMissingID
	}

	s.mu.Lock()
	s.req.end(err)
	if err == nil {
		if i := s.indexOf(task.ID); i >= 0 {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
		}
		s.tasks = append([]models.Task{task.Clone()}, s.tasks...)
	}
	s.mu.Unlock()
	s.changed()

	if err != nil {
		return models.Task{}, err
	}
	return task.Clone(), nil
}

// OptimisticUpdate replaces the entry with t's identifier. It reports
// whether an entry was replaced; unknown identifiers are ignored.
func (s *TaskStore) OptimisticUpdate(t models.Task) bool {
	if t.ID == "" {
		return false
	}
	s.mu.Lock()
	i := s.indexOf(t.ID)
	if i >= 0 {
		s.tasks[i] = t.Clone()
	}
	s.mu.Unlock()
	if i < 0 {
		return false
	}
	s.changed()
	return true
}

// Update shows next immediately and sends patch. The server's answer then
// replaces next. If the server rejects the change the pre-edit entry is put
// back and the collection is re-fetched with the current filters.
func (s *TaskStore) Update(ctx context.Context, next models.Task, patch models.TaskPatch) error {
	if next.ID == "" {
		return ErrMissingID
	}
	if err := patch.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	var prev models.Task
	i := s.indexOf(next.ID)
	had := i >= 0
	if had {
		prev = s.tasks[i]
		s.tasks[i] = next.Clone()
	}
	s.req.begin()
	s.mu.Unlock()
	s.changed()

	confirmed, err := s.api.UpdateTask(ctx, next.ID, patch)

	s.mu.Lock()
	s.req.end(err)
	if err != nil && had {
		if j := s.indexOf(prev.ID); j >= 0 {
			s.tasks[j] = prev
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.changed()
		slog.Info("task update rejected, resyncing", "task", next.ID, "err", err)
		s.resync(ctx)
		return err
	}
	if !s.OptimisticUpdate(*confirmed) {
		s.changed()
	}
	return nil
}

// OptimisticDelete removes the entry with id. Unknown ids are a no-op.
func (s *TaskStore) OptimisticDelete(id string) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i >= 0 {
		s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	}
	s.mu.Unlock()
	if i < 0 {
		return false
	}
	s.changed()
	return true
}

// Delete removes the task locally first, then asks the server. A rejected
// delete puts the task back and re-fetches.
func (s *TaskStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}

	s.mu.Lock()
	var prev models.Task
	pos := s.indexOf(id)
	if pos >= 0 {
		prev = s.tasks[pos]
		s.tasks = append(s.tasks[:pos], s.tasks[pos+1:]...)
	}
	s.req.begin()
	s.mu.Unlock()
	s.changed()

	err := s.api.DeleteTask(ctx, id)

	s.mu.Lock()
	s.req.end(err)
	if err != nil && pos >= 0 && s.indexOf(id) < 0 {
		if pos > len(s.tasks) {
			pos = len(s.tasks)
		}
		s.tasks = append(s.tasks[:pos], append([]models.Task{prev}, s.tasks[pos:]...)...)
	}
	s.mu.Unlock()
	s.changed()

	if err != nil {
		slog.Info("task delete rejected, resyncing", "task", id, "err", err)
		s.resync(ctx)
		return err
	}
	return nil
}

// OptimisticAddComment appends c to the task's comments if the task is
// loaded.
func (s *TaskStore) OptimisticAddComment(id string, c models.Comment) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i >= 0 {
		t := s.tasks[i].Clone()
		t.Comments = append(t.Comments, c)
		s.tasks[i] = t
	}
	s.mu.Unlock()
	if i < 0 {
		return false
	}
	s.changed()
	return true
}

// AddComment shows a client-made comment by author at once, then sends text.
// The server returns the whole task, which replaces the local one and with it
// the provisional comment. On failure the provisional comment is withdrawn
// and the collection re-fetched.
func (s *TaskStore) AddComment(ctx context.Context, id, text string, author models.User) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyComment
	}

	provisional := models.Comment{
		ID:        uuid.NewString(),
		Text:      text,
		User:      author,
		CreatedAt: s.now().UTC(),
	}
	s.OptimisticAddComment(id, provisional)

	s.mu.Lock()
	s.req.begin()
	s.mu.Unlock()

	task, err := s.api.AddComment(ctx, id, text)

	s.mu.Lock()
	s.req.end(err)
	if err != nil {
		if i := s.indexOf(id); i >= 0 {
			s.tasks[i] = withoutComment(s.tasks[i], provisional.ID)
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.changed()
		slog.Info("comment rejected, resyncing", "task", id, "err", err)
		s.resync(ctx)
		return err
	}
	if !s.OptimisticUpdate(*task) {
		s.changed()
	}
	return nil
}

func withoutComment(t models.Task, commentID string) models.Task {
	out := t.Clone()
	out.Comments = out.Comments[:0]
	for _, c := range t.Comments {
		if c.ID != commentID {
			out.Comments = append(out.Comments, c)
		}
	}
	return out
}

// Reset drops the collection and filters. A fetch still in flight is
// discarded when it lands.
func (s *TaskStore) Reset() {
	s.mu.Lock()
	s.fetchSeq++
	s.tasks = []models.Task{}
	s.filters = models.Filters{}
	s.req = requestState{}
	s.mu.Unlock()
	s.changed()
}
