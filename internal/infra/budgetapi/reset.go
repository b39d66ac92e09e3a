package budgetapi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const lastResetFile = "last_reset"

// ResetState хранит время последнего ежемесячного обнуления в state_dir:
// у HTTP API своего поля для него нет. Само обнуление уходит в API.
type ResetState struct {
	client *Client
	path   string
}

func NewResetState(c *Client, stateDir string) *ResetState {
	return &ResetState{client: c, path: filepath.Join(stateDir, lastResetFile)}
}

// LastReset нулевое время, если обнулений ещё не было.
func (s *ResetState) LastReset(context.Context) (time.Time, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", s.path, err)
	}
	return t, nil
}

func (s *ResetState) SetLastReset(_ context.Context, t time.Time) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(t.Format(time.RFC3339)+"\n"), 0o600); err != nil {
		return fmt.Errorf("save last reset: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *ResetState) Reset(ctx context.Context) error { return s.client.Reset(ctx) }
