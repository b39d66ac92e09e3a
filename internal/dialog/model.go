package dialog

type State string

const (
	StateIdle State = "idle"

	// Лимит
	StateAwaitLimit State = "await_limit" // ждём сумму нового лимита текстом

	// Сброс месяца
	StateAwaitResetConfirm State = "await_reset_confirm"
)

type Payload map[string]any

type Item struct {
	ChatID  int64
	State   State
	Payload Payload
}

// GetString Helper для безопасного чтения строк из payload
func GetString(p Payload, key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt числа в payload после JSON приходят как float64.
func GetInt(p Payload, key string) (int, bool) {
	switch v := p[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
