// Package mq предоставляет инфраструктуру очереди jobs поверх RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация jobs
//   - consumer.go   — потребление jobs
//   - events.go     — мост WorkflowUpdate между процессами
//
// Типы jobs:
//   - execute-task — немедленное выполнение узла
//   - delayed-task — выполнение узла после задержки (wait-узлы)
//
// Доставка — at-least-once: очередь durable, сообщения persistent,
// подтверждение вручную. Retry ведётся на уровне payload'а (счётчик
// attemptsMade инкрементируется при re-enqueue), а не средствами
// брокера — так движок получает номер попытки явным аргументом.
//
// Exchanges:
//   - cascade.jobs   — рабочие очереди jobs.execute и jobs.delayed
//   - cascade.dlq    — dead letter queue для некорректных payload'ов
//   - cascade.events — fanout событий WorkflowUpdate для API-процессов
package mq
