// Package engine содержит движок выполнения цепочек узлов workflow.
//
// Включает:
//   - engine.go — обход цепочки преемников, запись ExecutionState,
//     рассылка событий
//   - runner.go — полезная работа узла (точка расширения)
//   - errors.go — ошибки выполнения
//
// Engine отвечает за семантику выполнения: порядок узлов, терминальные
// статусы, обнаружение циклов и передачу wait-узлов планировщику.
// Откуда пришёл запрос на выполнение (HTTP, очередь, отложенный job) —
// забота вызывающих компонентов.
package engine
