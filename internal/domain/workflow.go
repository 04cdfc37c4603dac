package domain

import (
	"time"
)

// WorkflowStatus — жизненный цикл workflow.
type WorkflowStatus string

const (
	// WorkflowStatusActive — workflow активен и может выполняться.
	WorkflowStatusActive WorkflowStatus = "active"

	// WorkflowStatusPaused — workflow приостановлен.
	WorkflowStatusPaused WorkflowStatus = "paused"

	// WorkflowStatusCompleted — workflow завершён.
	WorkflowStatusCompleted WorkflowStatus = "completed"
)

// Workflow — именованный контейнер узлов, описывающий оркестрируемую
// последовательность шагов.
//
// Workflow — это "шаблон" процесса. Узлы (Node) хранятся в порядке
// вставки: этот порядок значим — он определяет позиционного преемника
// для узлов без явного next_node_id.
//
// Definition — свободный JSON-документ для внешнего инструментария
// (редакторы, визуализация). Движок его не интерпретирует.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID int64 `json:"id"`

	// Name — уникальное имя среди неудалённых workflows.
	Name string `json:"name"`

	// Definition — непрозрачный JSON-документ (jsonb).
	Definition map[string]any `json:"definition,omitempty"`

	// Status — статус жизненного цикла.
	Status WorkflowStatus `json:"status"`

	// Nodes — узлы в порядке вставки.
	Nodes []Node `json:"nodes,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}

// FindNode ищет узел по ID.
func (w *Workflow) FindNode(nodeID int64) (*Node, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].ID == nodeID {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}

// NodeAfter возвращает позиционного преемника узла — следующий узел
// в списке. Возвращает false, если узел не найден или является последним.
func (w *Workflow) NodeAfter(nodeID int64) (*Node, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].ID == nodeID {
			if i+1 < len(w.Nodes) {
				return &w.Nodes[i+1], true
			}
			return nil, false
		}
	}
	return nil, false
}
