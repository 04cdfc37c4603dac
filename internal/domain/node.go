package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// NodeType — тип узла workflow.
type NodeType string

const (
	// NodeTypeStart — маркер начала workflow.
	NodeTypeStart NodeType = "start"

	// NodeTypeEnd — маркер конца workflow.
	NodeTypeEnd NodeType = "end"

	// NodeTypeCondition — узел ветвления. Сам движок ветвления не
	// вычисляет: выбор ветки пре-резолвится внешним инструментарием
	// в единственный nextNodeId до того, как узел попадёт в движок.
	NodeTypeCondition NodeType = "condition"

	// NodeTypeWait — узел ожидания. Выполняется через Scheduler
	// с задержкой, а не инлайн в цепочке.
	NodeTypeWait NodeType = "wait"
)

// Valid проверяет, что тип узла известен.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeStart, NodeTypeEnd, NodeTypeCondition, NodeTypeWait:
		return true
	default:
		return false
	}
}

// Node — один шаг workflow: типизированная единица работы с
// необязательным преемником.
//
// NextNodeID — слабая ссылка (поиск по идентификатору внутри того же
// workflow, не указатель владения). Может ссылаться на любой узел,
// включая более ранние в списке — такие циклы движок обнаруживает
// и прерывает. Узел без явного преемника fallback'ается на
// позиционного следующего в списке.
type Node struct {
	// ID — уникальный идентификатор узла.
	ID int64 `json:"id"`

	// WorkflowID — ссылка на родительский workflow.
	WorkflowID int64 `json:"workflow_id"`

	// Type — тип узла.
	Type NodeType `json:"type"`

	// Name — отображаемое имя (опционально).
	Name string `json:"name,omitempty"`

	// Configuration — конфигурация узла (jsonb).
	// Интерпретируется типоспецифичной логикой при загрузке workflow:
	// для wait — delay (мс), для любого типа — override nextNodeId.
	Configuration map[string]any `json:"configuration,omitempty"`

	// NextNodeID — явный преемник (слабая ссылка).
	NextNodeID *int64 `json:"next_node_id,omitempty"`

	// Position — порядок вставки внутри workflow.
	Position int `json:"position"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName возвращает имя узла для событий и логов:
// configuration.action, затем Name, затем тип.
func (n *Node) DisplayName() string {
	if n.Configuration != nil {
		if action, ok := n.Configuration["action"].(string); ok && action != "" {
			return action
		}
	}
	if n.Name != "" {
		return n.Name
	}
	return string(n.Type)
}

// NodeSpec — типизированное представление узла, разрешённое один раз
// при загрузке workflow. Движок работает со спецификацией, а не
// перечитывает сырую configuration на каждом выполнении.
type NodeSpec struct {
	// Type — тип узла.
	Type NodeType

	// Next — разрешённый преемник: override из configuration.nextNodeId,
	// иначе NextNodeID узла. Nil — явного преемника нет.
	Next *int64

	// Wait — параметры ожидания, только для NodeTypeWait.
	Wait *WaitSpec
}

// WaitSpec — параметры узла типа wait.
type WaitSpec struct {
	// Delay — длительность ожидания перед выполнением узла.
	Delay time.Duration
}

// defaultWaitDelay используется, если wait-узел не задал delay.
const defaultWaitDelay = time.Second

// ResolveSpec разрешает configuration узла в типизированную NodeSpec.
// Возвращает ошибку для неизвестного типа узла или некорректных
// значений конфигурации.
func (n *Node) ResolveSpec() (*NodeSpec, error) {
	if !n.Type.Valid() {
		return nil, fmt.Errorf("node %d: unknown node type %q", n.ID, n.Type)
	}

	spec := &NodeSpec{
		Type: n.Type,
		Next: n.NextNodeID,
	}

	// Override преемника из configuration.
	if raw, ok := n.Configuration["nextNodeId"]; ok {
		next, err := toInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("node %d: invalid nextNodeId: %w", n.ID, err)
		}
		spec.Next = &next
	}

	if n.Type == NodeTypeWait {
		delay := defaultWaitDelay
		if raw, ok := n.Configuration["delay"]; ok {
			ms, err := toInt64(raw)
			if err != nil {
				return nil, fmt.Errorf("node %d: invalid delay: %w", n.ID, err)
			}
			if ms < 0 {
				return nil, fmt.Errorf("node %d: negative delay %d", n.ID, ms)
			}
			delay = time.Duration(ms) * time.Millisecond
		}
		spec.Wait = &WaitSpec{Delay: delay}
	}

	return spec, nil
}

// toInt64 приводит значение из JSON-конфигурации к int64.
// После json.Unmarshal числа приходят как float64.
func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	default:
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
}
