package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kanbanhq/kanban/internal/eventbus"
	"github.com/kanbanhq/kanban/internal/service"
	"github.com/kanbanhq/kanban/internal/storage/sqlite"
	"github.com/kanbanhq/kanban/internal/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "kanban.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	hub := eventbus.New(0)
	t.Cleanup(hub.Close)
	return NewRegistry(service.New(store, hub, zerolog.Nop()))
}

func call(t *testing.T, r *Registry, name string, args map[string]any) any {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	out, err := r.Call(context.Background(), name, raw)
	require.NoError(t, err)
	return out
}

func TestRegistryDescribesTools(t *testing.T) {
	r := newTestRegistry(t)
	tools := r.List()
	require.NotEmpty(t, tools)

	seen := make(map[string]bool)
	for _, tool := range tools {
		require.NotEmpty(t, tool.Name)
		require.NotEmpty(t, tool.Description)
		require.Equal(t, "object", tool.InputSchema["type"])
		require.False(t, seen[tool.Name], "duplicate tool %s", tool.Name)
		seen[tool.Name] = true
	}
	for _, name := range []string{"create_board", "create_task", "next_task", "add_dependency", "board_context"} {
		require.True(t, seen[name], "missing tool %s", name)
	}
}

func TestToolRoundTrip(t *testing.T) {
	r := newTestRegistry(t)

	board := call(t, r, "create_board", map[string]any{"name": "Agent Board"}).(*types.Board)
	require.NotZero(t, board.ID)

	task := call(t, r, "create_task", map[string]any{
		"board_id": board.ID,
		"title":    "Wire the agent",
		"priority": "high",
		"due_date": "+2d",
	}).(*types.Task)
	require.NotZero(t, task.ID)
	require.NotNil(t, task.DueDate)

	rec := call(t, r, "next_task", map[string]any{"board_id": board.ID})
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.Contains(t, string(data), "Wire the agent")

	out := call(t, r, "board_context", map[string]any{"board_id": board.ID}).(*service.BoardContext)
	require.Equal(t, board.ID, out.Board.ID)
	require.Equal(t, 1, out.StatusCounts[types.StatusTodo])
}

func TestDependencyToolsEnforceRules(t *testing.T) {
	r := newTestRegistry(t)
	board := call(t, r, "create_board", map[string]any{"name": "Rules"}).(*types.Board)
	a := call(t, r, "create_task", map[string]any{"board_id": board.ID, "title": "a"}).(*types.Task)
	b := call(t, r, "create_task", map[string]any{"board_id": board.ID, "title": "b"}).(*types.Task)

	call(t, r, "add_dependency", map[string]any{"task_id": a.ID, "depends_on_id": b.ID})

	raw, _ := json.Marshal(map[string]any{"task_id": b.ID, "depends_on_id": a.ID})
	_, err := r.Call(context.Background(), "add_dependency", raw)
	var serr *service.Error
	require.ErrorAs(t, err, &serr)
	require.Equal(t, service.CodeCycle, serr.Code)
}

func TestUnknownToolRejected(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Call(context.Background(), "no_such_tool", nil)
	var serr *service.Error
	require.ErrorAs(t, err, &serr)
	require.Equal(t, service.CodeNotFound, serr.Code)
}

func TestUnknownArgumentRejected(t *testing.T) {
	r := newTestRegistry(t)
	raw := json.RawMessage(`{"name":"x","bogus":true}`)
	_, err := r.Call(context.Background(), "create_board", raw)
	var serr *service.Error
	require.ErrorAs(t, err, &serr)
	require.Equal(t, service.CodeValidation, serr.Code)
}
