package coordinator

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Spok95/spendguard/internal/domain/spending"
)

//go:embed fallback.json
var bundledFallback []byte

// LoadFallback данные бюджета на случай, когда хранилище недоступно.
// Пустой path означает встроенный набор.
func LoadFallback(path string) (spending.Budget, error) {
	data := bundledFallback
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return spending.Budget{}, fmt.Errorf("read fallback: %w", err)
		}
		data = b
	}
	var out spending.Budget
	if err := json.Unmarshal(data, &out); err != nil {
		return spending.Budget{}, fmt.Errorf("parse fallback: %w", err)
	}
	return out, nil
}
