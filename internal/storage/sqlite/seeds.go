package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/types"
)

// SeedFile is the YAML layout for a seed fixture. Columns listed per
// board are created in order; tasks reference columns by name.
type SeedFile struct {
	Name   string      `yaml:"name"`
	Boards []SeedBoard `yaml:"boards"`
	Tags   []SeedTag   `yaml:"tags"`

	checksum string
}

// SeedBoard declares one board with its columns and initial tasks.
type SeedBoard struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Columns     []string   `yaml:"columns"`
	Tasks       []SeedTask `yaml:"tasks"`
}

// SeedTask declares one task placed in a named column.
type SeedTask struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Column      string   `yaml:"column"`
	Status      string   `yaml:"status"`
	Priority    string   `yaml:"priority"`
	Assignee    string   `yaml:"assignee"`
	Tags        []string `yaml:"tags"`
}

// SeedTag declares one tag; Parent references an earlier seed tag by
// name.
type SeedTag struct {
	Name   string `yaml:"name"`
	Color  string `yaml:"color"`
	Parent string `yaml:"parent"`
}

// LoadSeedFile parses a YAML fixture from disk.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var sf SeedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	if sf.Name == "" {
		return nil, fmt.Errorf("seed file %s has no name", path)
	}
	sum := sha256.Sum256(data)
	sf.checksum = hex.EncodeToString(sum[:])
	return &sf, nil
}

// ApplySeed loads a fixture into the database inside one transaction.
// A seed already recorded in seed_status is skipped unless force is
// set; a checksum mismatch against the recorded seed is an error
// rather than a silent replay. Force replays rely on unique
// constraints to reject duplicates.
func (s *Store) ApplySeed(ctx context.Context, sf *SeedFile, force bool) (applied bool, err error) {
	err = s.RunInTransaction(ctx, func(tx storage.Tx) error {
		h, ok := tx.(*txHandle)
		if !ok {
			return fmt.Errorf("unexpected transaction type %T", tx)
		}

		var recorded string
		scanErr := h.queries.dbtx.QueryRowContext(ctx,
			`SELECT checksum FROM seed_status WHERE name = ?`, sf.Name).Scan(&recorded)
		switch {
		case scanErr == nil && !force:
			if recorded != sf.checksum {
				return fmt.Errorf("seed %q changed since it was applied; re-run with force to replay", sf.Name)
			}
			return nil
		case scanErr != nil && !errors.Is(scanErr, sql.ErrNoRows):
			return wrapDBError("read seed status", scanErr)
		}

		if err := applySeedData(ctx, tx, sf); err != nil {
			return err
		}

		if _, err := h.queries.dbtx.ExecContext(ctx,
			`INSERT INTO seed_status (name, applied_at, checksum) VALUES (?, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET applied_at = excluded.applied_at, checksum = excluded.checksum`,
			sf.Name, time.Now().UTC(), sf.checksum); err != nil {
			return wrapDBError("record seed", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

func applySeedData(ctx context.Context, tx storage.Tx, sf *SeedFile) error {
	tagIDs := make(map[string]int64, len(sf.Tags))
	tagPaths := make(map[string]string, len(sf.Tags))
	for _, st := range sf.Tags {
		tag := &types.Tag{
			Name:  st.Name,
			Slug:  types.Slugify(st.Name),
			Color: st.Color,
			Path:  types.Slugify(st.Name),
		}
		if st.Parent != "" {
			parentID, ok := tagIDs[st.Parent]
			if !ok {
				return fmt.Errorf("seed tag %q references unknown parent %q", st.Name, st.Parent)
			}
			tag.ParentID = &parentID
			tag.Path = tagPaths[st.Parent] + "/" + tag.Slug
		}
		if err := tx.CreateTag(ctx, tag); err != nil {
			return fmt.Errorf("seed tag %q: %w", st.Name, err)
		}
		tagIDs[st.Name] = tag.ID
		tagPaths[st.Name] = tag.Path
	}

	for _, sb := range sf.Boards {
		board := &types.Board{Name: sb.Name, Description: sb.Description}
		if err := tx.CreateBoard(ctx, board); err != nil {
			return fmt.Errorf("seed board %q: %w", sb.Name, err)
		}
		columnIDs := make(map[string]int64, len(sb.Columns))
		for i, name := range sb.Columns {
			col := &types.Column{BoardID: board.ID, Name: name, Position: i}
			if err := tx.CreateColumn(ctx, col); err != nil {
				return fmt.Errorf("seed column %q: %w", name, err)
			}
			columnIDs[name] = col.ID
		}
		for _, st := range sb.Tasks {
			colID, ok := columnIDs[st.Column]
			if !ok {
				return fmt.Errorf("seed task %q references unknown column %q", st.Title, st.Column)
			}
			task := &types.Task{
				BoardID:     board.ID,
				ColumnID:    colID,
				Title:       st.Title,
				Description: st.Description,
				Status:      types.Status(st.Status),
				Priority:    types.Priority(st.Priority),
				Assignee:    st.Assignee,
			}
			if task.Status == "" {
				task.Status = types.StatusTodo
			}
			if task.Priority == "" {
				task.Priority = types.PriorityMedium
			}
			if err := tx.CreateTask(ctx, task); err != nil {
				return fmt.Errorf("seed task %q: %w", st.Title, err)
			}
			for _, tagName := range st.Tags {
				tagID, ok := tagIDs[tagName]
				if !ok {
					return fmt.Errorf("seed task %q references unknown tag %q", st.Title, tagName)
				}
				if err := tx.AddTaskTag(ctx, task.ID, tagID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
