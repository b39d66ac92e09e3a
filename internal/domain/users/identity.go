package users

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const identityFile = "user_id"

// LoadOrCreateID идентификатор установки: читается из stateDir, при первом запуске
// генерируется и сохраняется.
func LoadOrCreateID(stateDir string) (uuid.UUID, error) {
	path := filepath.Join(stateDir, identityFile)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		id, err := uuid.Parse(strings.TrimSpace(string(data)))
		if err != nil {
			return uuid.Nil, fmt.Errorf("%s: %w", path, err)
		}
		return id, nil
	case !errors.Is(err, os.ErrNotExist):
		return uuid.Nil, err
	}

	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0o600); err != nil {
		return uuid.Nil, fmt.Errorf("save user id: %w", err)
	}
	return id, nil
}
