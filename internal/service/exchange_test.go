package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kanbanhq/kanban/internal/types"
)

// seedExchangeData builds a data set exercising every exported shape:
// nested tags, two boards, a subtask tree, notes, and both dependency
// types.
func seedExchangeData(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()

	backend, err := svc.CreateTag(ctx, CreateTagInput{Name: "Backend", Color: "#ff0000"})
	require.NoError(t, err)
	_, err = svc.CreateTag(ctx, CreateTagInput{Name: "Database", ParentID: &backend.ID})
	require.NoError(t, err)

	sprint := makeBoard(t, svc, "Sprint 12")
	ops := makeBoard(t, svc, "Ops")

	schema := makeTask(t, svc, sprint.ID, "Design schema")
	api := makeTask(t, svc, sprint.ID, "Build API")
	deploy := makeTask(t, svc, ops.ID, "Deploy")

	child, err := svc.CreateSubtask(ctx, CreateSubtaskInput{ParentID: api.ID, Title: "Write handlers"})
	require.NoError(t, err)
	_, err = svc.UpdateTaskStatus(ctx, child.ID, types.StatusDone)
	require.NoError(t, err)

	db, err := svc.store.GetTagBySlug(ctx, "database")
	require.NoError(t, err)
	require.NoError(t, svc.TagTask(ctx, schema.ID, db.ID))
	require.NoError(t, svc.TagTask(ctx, schema.ID, backend.ID))

	_, err = svc.AddNote(ctx, AddNoteInput{TaskID: schema.ID, Content: "Use a composite key", Category: types.NoteGeneral, Pinned: true})
	require.NoError(t, err)
	_, err = svc.AddNote(ctx, AddNoteInput{TaskID: api.ID, Content: "Blocked on schema review"})
	require.NoError(t, err)

	require.NoError(t, svc.AddDependency(ctx, api.ID, schema.ID, types.DepBlocks))
	require.NoError(t, svc.AddDependency(ctx, deploy.ID, api.ID, types.DepRelated))
}

// fingerprint reduces the data set to an id-free canonical form so two
// databases can be compared up to generated ids.
func fingerprint(t *testing.T, svc *Service) string {
	t.Helper()
	ctx := context.Background()
	var lines []string

	tags, err := svc.ListTags(ctx)
	require.NoError(t, err)
	for _, tag := range tags {
		lines = append(lines, fmt.Sprintf("tag|%s|%s|%s", tag.Path, tag.Name, tag.Color))
	}

	boards, err := svc.ListBoards(ctx, true)
	require.NoError(t, err)
	title := func(id int64) string {
		task, err := svc.store.GetTask(ctx, id)
		require.NoError(t, err)
		return task.Title
	}
	for _, b := range boards {
		cols, err := svc.store.ListColumns(ctx, b.ID)
		require.NoError(t, err)
		for _, c := range cols {
			lines = append(lines, fmt.Sprintf("column|%s|%d|%s|%s", b.Name, c.Position, c.Name, c.Color))
		}
		tasks, err := svc.store.ListBoardTasks(ctx, b.ID, true)
		require.NoError(t, err)
		for _, task := range tasks {
			parent := ""
			if task.ParentTaskID != nil {
				parent = title(*task.ParentTaskID)
			}
			lines = append(lines, fmt.Sprintf("task|%s|%s|%s|%s|%s|%d|%v",
				b.Name, task.Title, task.Status, task.Priority, parent, task.Position, task.Archived))
			taskTags, err := svc.store.ListTaskTags(ctx, task.ID)
			require.NoError(t, err)
			for _, tag := range taskTags {
				lines = append(lines, fmt.Sprintf("tasktag|%s|%s", task.Title, tag.Path))
			}
			notes, err := svc.store.ListNotes(ctx, task.ID)
			require.NoError(t, err)
			for _, n := range notes {
				lines = append(lines, fmt.Sprintf("note|%s|%s|%s|%v", task.Title, n.Content, n.Category, n.Pinned))
			}
			deps, err := svc.store.ListDependencies(ctx, task.ID)
			require.NoError(t, err)
			for _, d := range deps {
				lines = append(lines, fmt.Sprintf("dep|%s|%s|%s", title(d.TaskID), title(d.DependsOnTaskID), d.Type))
			}
		}
	}

	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func TestExportImportRoundTrip(t *testing.T) {
	src, _ := newTestService(t)
	seedExchangeData(t, src)
	ctx := context.Background()

	var buf bytes.Buffer
	stats, err := src.ExportData(ctx, &buf)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Boards)
	require.Equal(t, 4, stats.Tasks)
	require.Equal(t, 2, stats.Tags)
	require.Equal(t, 2, stats.Notes)
	require.Equal(t, 2, stats.Dependencies)

	dst, _ := newTestService(t)
	imported, err := dst.ImportData(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, stats.Boards, imported.Boards)
	require.Equal(t, stats.Tasks, imported.Tasks)
	require.Equal(t, stats.Notes, imported.Notes)
	require.Equal(t, stats.Tags, imported.Tags)
	require.Equal(t, stats.Dependencies, imported.Dependencies)

	require.Equal(t, fingerprint(t, src), fingerprint(t, dst))
}

func TestImportRebuildsDerivedState(t *testing.T) {
	src, _ := newTestService(t)
	seedExchangeData(t, src)
	ctx := context.Background()

	var buf bytes.Buffer
	_, err := src.ExportData(ctx, &buf)
	require.NoError(t, err)

	dst, _ := newTestService(t)
	_, err = dst.ImportData(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	board, err := dst.store.GetBoardByName(ctx, "Sprint 12")
	require.NoError(t, err)
	tasks, err := dst.store.ListBoardTasks(ctx, board.ID, true)
	require.NoError(t, err)
	var parent *types.Task
	for _, task := range tasks {
		if task.Title == "Build API" {
			parent = task
		}
	}
	require.NotNil(t, parent)

	progress, err := dst.store.GetProgress(ctx, parent.ID)
	require.NoError(t, err)
	require.Equal(t, 1, progress.ChildCount)
	require.Equal(t, 1, progress.DoneCount)
	require.InDelta(t, 100.0, progress.PercentComplete, 0.01)
}

func TestImportMatchesExistingTagsByPath(t *testing.T) {
	src, _ := newTestService(t)
	seedExchangeData(t, src)
	ctx := context.Background()

	var buf bytes.Buffer
	_, err := src.ExportData(ctx, &buf)
	require.NoError(t, err)

	dst, _ := newTestService(t)
	existing, err := dst.CreateTag(ctx, CreateTagInput{Name: "Backend", Color: "#ff0000"})
	require.NoError(t, err)

	imported, err := dst.ImportData(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, 1, imported.Tags, "only the child tag is new")

	got, err := dst.store.GetTagBySlug(ctx, "backend")
	require.NoError(t, err)
	require.Equal(t, existing.ID, got.ID)
}

func TestImportRejectsCyclicDependencies(t *testing.T) {
	src, _ := newTestService(t)
	ctx := context.Background()
	board := makeBoard(t, src, "Cycles")
	a := makeTask(t, src, board.ID, "a")
	b := makeTask(t, src, board.ID, "b")
	require.NoError(t, src.AddDependency(ctx, a.ID, b.ID, types.DepBlocks))

	var buf bytes.Buffer
	_, err := src.ExportData(ctx, &buf)
	require.NoError(t, err)

	// Append a reverse edge to close the loop.
	reverse := fmt.Sprintf(`{"kind":"dependency","dependency":{"task_ref":%d,"depends_on_ref":%d,"type":"blocks"}}`+"\n", b.ID, a.ID)
	buf.WriteString(reverse)

	dst, _ := newTestService(t)
	_, err = dst.ImportData(ctx, bytes.NewReader(buf.Bytes()))
	requireCode(t, err, CodeCycle)

	// The failed import left nothing behind.
	boards, err := dst.ListBoards(ctx, true)
	require.NoError(t, err)
	require.Empty(t, boards)
}

func TestImportRejectsMalformedStream(t *testing.T) {
	dst, _ := newTestService(t)
	_, err := dst.ImportData(context.Background(), strings.NewReader("{not json}\n"))
	requireCode(t, err, CodeValidation)
}
