package scanner

// Element узел страницы, найденный по селектору.
type Element interface {
	// Text textContent узла, без обрезки пробелов.
	Text() string
	// Visible есть ли у узла отрисованный размер.
	Visible() bool
	// Query первый потомок, подходящий под селектор.
	Query(selector string) (Element, bool)
	// Closest ближайший предок (включая сам узел), подходящий под селектор.
	Closest(selector string) (Element, bool)
}

// Document страница, которую мы не контролируем. Реализации: статический HTML
// (htmldoc.go) и живая вкладка Chrome (internal/infra/browser).
type Document interface {
	// QueryAll все узлы по селектору в порядке документа. Невалидный селектор даёт ошибку.
	QueryAll(selector string) ([]Element, error)
	// Changes сигнал на каждую пачку добавленных в DOM узлов.
	Changes() <-chan struct{}
	// Substitute ставит перед original нашу кнопку и прячет/выключает original,
	// не удаляя его. activate вызывается при нажатии на нашу кнопку.
	Substitute(original Element, label string, activate func()) error
	// Trigger включает original обратно и вызывает его родное действие.
	Trigger(original Element) error
	// Alert показывает пользователю блокирующее сообщение.
	Alert(msg string)
}
