// Package runners реализует действия узлов workflow.
//
// Движок делегирует полезную работу узла Runner'у; пакет runners
// даёт ему реестр именованных действий (configuration.action) и
// стандартные реализации:
//
//   - delay: пауза заданной длительности
//   - http:  HTTP запрос к внешнему сервису
//
// Узлы без действия выполняются fallback-runner'ом движка.
// Кастомные действия регистрируются через Registry.Register.
package runners
