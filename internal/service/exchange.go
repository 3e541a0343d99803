package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/kanbanhq/kanban/internal/engine"
	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/types"
)

// exchangeRecord is one line of the JSONL exchange stream. Kind selects
// which payload field is set. Refs are the ids from the exporting
// database; import remaps them to freshly generated ids.
type exchangeRecord struct {
	Kind  string       `json:"kind"`
	Tag   *tagRecord   `json:"tag,omitempty"`
	Board *boardRecord `json:"board,omitempty"`
	Task  *taskRecord  `json:"task,omitempty"`
	Dep   *depRecord   `json:"dependency,omitempty"`
}

const (
	recordTag   = "tag"
	recordBoard = "board"
	recordTask  = "task"
	recordDep   = "dependency"
)

type tagRecord struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Color string `json:"color,omitempty"`
}

type columnRecord struct {
	Ref      int64  `json:"ref"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Color    string `json:"color,omitempty"`
}

type boardRecord struct {
	Ref         int64          `json:"ref"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Archived    bool           `json:"archived,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Columns     []columnRecord `json:"columns"`
}

type noteRecord struct {
	Content   string             `json:"content"`
	Category  types.NoteCategory `json:"category"`
	Pinned    bool               `json:"pinned,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

type taskRecord struct {
	Ref            int64          `json:"ref"`
	BoardRef       int64          `json:"board_ref"`
	ColumnRef      int64          `json:"column_ref"`
	ParentRef      *int64         `json:"parent_ref,omitempty"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Status         types.Status   `json:"status"`
	Priority       types.Priority `json:"priority"`
	PriorityScore  float64        `json:"priority_score"`
	DueDate        *time.Time     `json:"due_date,omitempty"`
	Assignee       string         `json:"assignee,omitempty"`
	EstimatedHours *float64       `json:"estimated_hours,omitempty"`
	Position       int            `json:"position"`
	CreatedAt      time.Time      `json:"created_at"`
	Archived       bool           `json:"archived,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	Notes          []noteRecord   `json:"notes,omitempty"`
}

type depRecord struct {
	TaskRef      int64         `json:"task_ref"`
	DependsOnRef int64         `json:"depends_on_ref"`
	Type         types.DepType `json:"type"`
}

// ExchangeStats counts the entities moved by an export or import.
type ExchangeStats struct {
	Boards       int `json:"boards"`
	Columns      int `json:"columns"`
	Tasks        int `json:"tasks"`
	Notes        int `json:"notes"`
	Tags         int `json:"tags"`
	Dependencies int `json:"dependencies"`
}

// ExportData streams the full data set to w as JSONL: tags first
// (parents before children), then boards with their columns, then
// tasks (parents before children) with their notes and tag paths,
// then dependency edges. The whole read runs in one transaction so
// the stream is a consistent snapshot.
func (s *Service) ExportData(ctx context.Context, w io.Writer) (*ExchangeStats, error) {
	stats := &ExchangeStats{}
	enc := json.NewEncoder(w)
	err := s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return s.exportTo(ctx, tx, enc, stats)
	})
	if err != nil {
		return nil, wrapStorage(err, "export")
	}
	return stats, nil
}

func (s *Service) exportTo(ctx context.Context, tx storage.Tx, enc *json.Encoder, stats *ExchangeStats) error {
	tags, err := tx.ListTags(ctx)
	if err != nil {
		return err
	}
	// Lexicographic path order puts every parent before its children.
	sort.Slice(tags, func(i, j int) bool { return tags[i].Path < tags[j].Path })
	for _, t := range tags {
		rec := exchangeRecord{Kind: recordTag, Tag: &tagRecord{Name: t.Name, Path: t.Path, Color: t.Color}}
		if err := enc.Encode(rec); err != nil {
			return err
		}
		stats.Tags++
	}

	boards, err := tx.ListBoards(ctx, true)
	if err != nil {
		return err
	}
	var deps []depRecord
	seenDeps := make(map[string]bool)
	for _, b := range boards {
		cols, err := tx.ListColumns(ctx, b.ID)
		if err != nil {
			return err
		}
		br := &boardRecord{Ref: b.ID, Name: b.Name, Description: b.Description, Archived: b.Archived, CreatedAt: b.CreatedAt}
		for _, c := range cols {
			br.Columns = append(br.Columns, columnRecord{Ref: c.ID, Name: c.Name, Position: c.Position, Color: c.Color})
			stats.Columns++
		}
		if err := enc.Encode(exchangeRecord{Kind: recordBoard, Board: br}); err != nil {
			return err
		}
		stats.Boards++

		tasks, err := tx.ListBoardTasks(ctx, b.ID, true)
		if err != nil {
			return err
		}
		h := engine.NewHierarchy(tasks)
		sort.SliceStable(tasks, func(i, j int) bool {
			di, dj := h.Depth(tasks[i].ID), h.Depth(tasks[j].ID)
			if di != dj {
				return di < dj
			}
			return tasks[i].ID < tasks[j].ID
		})
		for _, t := range tasks {
			tr, err := exportTask(ctx, tx, t)
			if err != nil {
				return err
			}
			if err := enc.Encode(exchangeRecord{Kind: recordTask, Task: tr}); err != nil {
				return err
			}
			stats.Tasks++
			stats.Notes += len(tr.Notes)
		}

		edges, err := tx.ListBoardDependencies(ctx, b.ID)
		if err != nil {
			return err
		}
		for _, d := range edges {
			key := fmt.Sprintf("%d>%d:%s", d.TaskID, d.DependsOnTaskID, d.Type)
			if seenDeps[key] {
				continue
			}
			seenDeps[key] = true
			deps = append(deps, depRecord{TaskRef: d.TaskID, DependsOnRef: d.DependsOnTaskID, Type: d.Type})
		}
	}

	// Edges last, once every task they reference has been written.
	for i := range deps {
		if err := enc.Encode(exchangeRecord{Kind: recordDep, Dep: &deps[i]}); err != nil {
			return err
		}
		stats.Dependencies++
	}
	return nil
}

func exportTask(ctx context.Context, tx storage.Tx, t *types.Task) (*taskRecord, error) {
	tr := &taskRecord{
		Ref:            t.ID,
		BoardRef:       t.BoardID,
		ColumnRef:      t.ColumnID,
		ParentRef:      t.ParentTaskID,
		Title:          t.Title,
		Description:    t.Description,
		Status:         t.Status,
		Priority:       t.Priority,
		PriorityScore:  t.PriorityScore,
		DueDate:        t.DueDate,
		Assignee:       t.Assignee,
		EstimatedHours: t.EstimatedHours,
		Position:       t.Position,
		CreatedAt:      t.CreatedAt,
		Archived:       t.Archived,
	}
	tags, err := tx.ListTaskTags(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	for _, tag := range tags {
		tr.Tags = append(tr.Tags, tag.Path)
	}
	notes, err := tx.ListNotes(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		tr.Notes = append(tr.Notes, noteRecord{Content: n.Content, Category: n.Category, Pinned: n.Pinned, CreatedAt: n.CreatedAt})
	}
	return tr, nil
}

// ImportData reads a JSONL exchange stream and creates its contents in
// one transaction: tags are matched to existing ones by path, boards
// and tasks are created fresh with remapped ids, dependency edges are
// re-validated (self references, cross-board blocks, cycles), and
// progress rollups are rebuilt. Import never merges into existing
// boards; a name collision fails the transaction.
func (s *Service) ImportData(ctx context.Context, r io.Reader) (*ExchangeStats, error) {
	var recs []exchangeRecord
	dec := json.NewDecoder(r)
	for {
		var rec exchangeRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, Validationf("malformed exchange stream: %v", err)
		}
		recs = append(recs, rec)
	}

	stats := &ExchangeStats{}
	err := s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		// Fresh state on every attempt so a busy-retry does not reuse
		// ids from a rolled-back transaction.
		*stats = ExchangeStats{}
		imp := &importState{
			tagIDs:     make(map[string]int64),
			boardIDs:   make(map[int64]int64),
			columnIDs:  make(map[int64]int64),
			taskIDs:    make(map[int64]int64),
			taskBoards: make(map[int64]int64),
			boardTasks: make(map[int64][]*types.Task),
			boardDeps:  make(map[int64][]*types.Dependency),
		}
		for _, rec := range recs {
			var err error
			switch rec.Kind {
			case recordTag:
				err = imp.importTag(ctx, tx, rec.Tag, stats)
			case recordBoard:
				err = imp.importBoard(ctx, tx, rec.Board, stats)
			case recordTask:
				err = imp.importTask(ctx, tx, rec.Task, stats)
			case recordDep:
				err = imp.importDep(ctx, tx, rec.Dep, stats)
			default:
				err = Validationf("unknown record kind %q", rec.Kind)
			}
			if err != nil {
				return err
			}
		}
		return imp.rollup(ctx, tx)
	})
	if err != nil {
		return nil, wrapStorage(err, "import")
	}
	s.log.Info().
		Int("boards", stats.Boards).
		Int("tasks", stats.Tasks).
		Int("dependencies", stats.Dependencies).
		Msg("import complete")
	return stats, nil
}

// importState maps exporter ids onto the ids generated here.
type importState struct {
	tagIDs     map[string]int64 // tag path -> new id
	boardIDs   map[int64]int64
	columnIDs  map[int64]int64
	taskIDs    map[int64]int64
	taskBoards map[int64]int64 // task ref -> board ref
	boardTasks map[int64][]*types.Task
	boardDeps  map[int64][]*types.Dependency
}

func (imp *importState) importTag(ctx context.Context, tx storage.Tx, rec *tagRecord, stats *ExchangeStats) error {
	if rec == nil || rec.Path == "" {
		return Validationf("tag record missing path")
	}
	slug := rec.Path
	var parentID *int64
	if i := strings.LastIndex(rec.Path, "/"); i >= 0 {
		slug = rec.Path[i+1:]
		pid, ok := imp.tagIDs[rec.Path[:i]]
		if !ok {
			return Validationf("tag %q appears before its parent", rec.Path)
		}
		parentID = &pid
	}

	// An existing tag with the same path is reused rather than
	// duplicated; a slug collision on a different path is a conflict.
	existing, err := tx.GetTagBySlug(ctx, slug)
	switch {
	case err == nil:
		if existing.Path != rec.Path {
			return Conflict(CodeDuplicate, fmt.Sprintf("tag slug %q already used by %q", slug, existing.Path), nil)
		}
		imp.tagIDs[rec.Path] = existing.ID
		return nil
	case errors.Is(err, storage.ErrNotFound):
	default:
		return err
	}

	tag := &types.Tag{Name: rec.Name, Slug: slug, Color: rec.Color, ParentID: parentID, Path: rec.Path}
	if err := tx.CreateTag(ctx, tag); err != nil {
		return err
	}
	imp.tagIDs[rec.Path] = tag.ID
	stats.Tags++
	return nil
}

func (imp *importState) importBoard(ctx context.Context, tx storage.Tx, rec *boardRecord, stats *ExchangeStats) error {
	if rec == nil {
		return Validationf("empty board record")
	}
	board := &types.Board{Name: rec.Name, Description: rec.Description, Archived: rec.Archived, CreatedAt: rec.CreatedAt}
	if err := tx.CreateBoard(ctx, board); err != nil {
		return err
	}
	imp.boardIDs[rec.Ref] = board.ID
	stats.Boards++
	for i := range rec.Columns {
		cr := &rec.Columns[i]
		col := &types.Column{BoardID: board.ID, Name: cr.Name, Position: cr.Position, Color: cr.Color}
		if err := tx.CreateColumn(ctx, col); err != nil {
			return err
		}
		imp.columnIDs[cr.Ref] = col.ID
		stats.Columns++
	}
	return nil
}

func (imp *importState) importTask(ctx context.Context, tx storage.Tx, rec *taskRecord, stats *ExchangeStats) error {
	if rec == nil {
		return Validationf("empty task record")
	}
	boardID, ok := imp.boardIDs[rec.BoardRef]
	if !ok {
		return Validationf("task %q references unknown board %d", rec.Title, rec.BoardRef)
	}
	columnID, ok := imp.columnIDs[rec.ColumnRef]
	if !ok {
		return Validationf("task %q references unknown column %d", rec.Title, rec.ColumnRef)
	}
	var parentID *int64
	if rec.ParentRef != nil {
		pid, ok := imp.taskIDs[*rec.ParentRef]
		if !ok {
			return Validationf("task %q appears before its parent", rec.Title)
		}
		parentID = &pid
	}

	task := &types.Task{
		BoardID:        boardID,
		ColumnID:       columnID,
		ParentTaskID:   parentID,
		Title:          rec.Title,
		Description:    rec.Description,
		Status:         rec.Status,
		Priority:       rec.Priority,
		PriorityScore:  rec.PriorityScore,
		DueDate:        rec.DueDate,
		Assignee:       rec.Assignee,
		EstimatedHours: rec.EstimatedHours,
		Position:       rec.Position,
		CreatedAt:      rec.CreatedAt,
		Archived:       rec.Archived,
	}
	if err := tx.CreateTask(ctx, task); err != nil {
		return err
	}
	imp.taskIDs[rec.Ref] = task.ID
	imp.taskBoards[rec.Ref] = rec.BoardRef
	imp.boardTasks[boardID] = append(imp.boardTasks[boardID], task)
	stats.Tasks++

	for _, path := range rec.Tags {
		tagID, ok := imp.tagIDs[path]
		if !ok {
			return Validationf("task %q references unknown tag %q", rec.Title, path)
		}
		if err := tx.AddTaskTag(ctx, task.ID, tagID); err != nil {
			return err
		}
	}
	for _, nr := range rec.Notes {
		note := &types.Note{TaskID: task.ID, BoardID: boardID, Content: nr.Content, Category: nr.Category, Pinned: nr.Pinned, CreatedAt: nr.CreatedAt}
		if err := tx.CreateNote(ctx, note); err != nil {
			return err
		}
		stats.Notes++
	}
	return nil
}

func (imp *importState) importDep(ctx context.Context, tx storage.Tx, rec *depRecord, stats *ExchangeStats) error {
	if rec == nil {
		return Validationf("empty dependency record")
	}
	if rec.TaskRef == rec.DependsOnRef {
		return Conflict(CodeSelfDependency, "a task cannot depend on itself", nil)
	}
	taskID, ok := imp.taskIDs[rec.TaskRef]
	if !ok {
		return Validationf("dependency references unknown task %d", rec.TaskRef)
	}
	dependsOnID, ok := imp.taskIDs[rec.DependsOnRef]
	if !ok {
		return Validationf("dependency references unknown task %d", rec.DependsOnRef)
	}

	if rec.Type == types.DepBlocks {
		boardRef := imp.taskBoards[rec.TaskRef]
		if boardRef != imp.taskBoards[rec.DependsOnRef] {
			return Conflict(CodeCrossBoard, "blocking dependencies cannot span boards", nil)
		}
		boardID := imp.boardIDs[boardRef]
		g := engine.NewGraph(imp.boardTasks[boardID], imp.boardDeps[boardID])
		if g.WouldCreateCycle(taskID, dependsOnID) {
			return Conflict(CodeCycle, "dependency would create a cycle", map[string]any{
				"task_id": taskID, "depends_on_id": dependsOnID,
			})
		}
		dep := &types.Dependency{TaskID: taskID, DependsOnTaskID: dependsOnID, Type: rec.Type}
		if err := tx.AddDependency(ctx, dep); err != nil {
			return err
		}
		imp.boardDeps[boardID] = append(imp.boardDeps[boardID], dep)
		stats.Dependencies++
		return nil
	}

	dep := &types.Dependency{TaskID: taskID, DependsOnTaskID: dependsOnID, Type: rec.Type}
	if err := tx.AddDependency(ctx, dep); err != nil {
		return err
	}
	stats.Dependencies++
	return nil
}

// rollup rebuilds the progress rows for every imported board.
func (imp *importState) rollup(ctx context.Context, tx storage.Tx) error {
	for _, tasks := range imp.boardTasks {
		h := engine.NewHierarchy(tasks)
		for _, p := range h.RollupAll() {
			if err := tx.UpsertProgress(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}
