package service

import (
	"context"
	"path"
	"strings"

	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/types"
)

// RepoRef identifies a repository checkout for board resolution.
type RepoRef struct {
	URL        string `json:"url,omitempty"`
	Name       string `json:"name,omitempty"`
	Branch     string `json:"branch,omitempty"`
	ConfigFile string `json:"config_file,omitempty"`
}

// CreateMapping registers a repository-to-board routing rule.
func (s *Service) CreateMapping(ctx context.Context, m *types.RepoMapping) (*types.RepoMapping, error) {
	if err := m.Validate(); err != nil {
		return nil, Validationf("%v", err)
	}
	err := s.write(ctx, "mapping", func(tx storage.Tx, ev *eventBuffer) error {
		if _, err := tx.GetBoard(ctx, m.BoardID); err != nil {
			return boardNotFound(err, m.BoardID)
		}
		return tx.CreateMapping(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteMapping removes a routing rule.
func (s *Service) DeleteMapping(ctx context.Context, id int64) error {
	return s.write(ctx, "mapping", func(tx storage.Tx, ev *eventBuffer) error {
		return tx.DeleteMapping(ctx, id)
	})
}

// ListMappings returns all routing rules, highest priority first.
func (s *Service) ListMappings(ctx context.Context) ([]*types.RepoMapping, error) {
	out, err := s.store.ListMappings(ctx)
	if err != nil {
		return nil, wrapStorage(err, "mapping")
	}
	return out, nil
}

// ResolveBoard routes a repository to a board: rules are evaluated in
// priority order and the first match wins. Returns the board and the
// rule's default tags, or a not-found error when nothing matches.
func (s *Service) ResolveBoard(ctx context.Context, ref RepoRef) (*types.Board, []string, error) {
	mappings, err := s.store.ListMappings(ctx)
	if err != nil {
		return nil, nil, wrapStorage(err, "mapping")
	}
	for _, m := range mappings {
		if !mappingMatches(m, ref) {
			continue
		}
		board, err := s.store.GetBoard(ctx, m.BoardID)
		if err != nil {
			return nil, nil, wrapStorage(err, "board")
		}
		return board, m.DefaultTags, nil
	}
	return nil, nil, NotFoundf("no board mapping matches the repository")
}

// mappingMatches applies one rule to a repo reference. Patterns with
// glob metacharacters match with path.Match semantics; plain patterns
// match case-insensitively as substrings.
func mappingMatches(m *types.RepoMapping, ref RepoRef) bool {
	var subject string
	switch m.PatternType {
	case types.PatternURL:
		subject = ref.URL
	case types.PatternName:
		subject = ref.Name
	case types.PatternBranch:
		subject = ref.Branch
	case types.PatternConfigFile:
		subject = ref.ConfigFile
	}
	if subject == "" {
		return false
	}
	pattern := strings.ToLower(m.Pattern)
	subject = strings.ToLower(subject)
	if strings.ContainsAny(pattern, "*?[") {
		ok, err := path.Match(pattern, subject)
		return err == nil && ok
	}
	return strings.Contains(subject, pattern)
}
