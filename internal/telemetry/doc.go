// Package telemetry — наблюдаемость: структурное логирование и метрики.
//
// Логирование — log/slog с JSON handler'ом для production и text для
// разработки. Логгер передаётся через контекст (WithLogger/FromContext),
// доменные атрибуты добавляются хелперами WithWorkflowID/WithNodeID/WithJobID.
//
// Метрики — Prometheus, регистрация через promauto в глобальном реестре.
// Каждый сервис экспортирует их на /metrics.
package telemetry
