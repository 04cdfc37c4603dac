// Package cli реализует инструмент командной строки Cascade.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Cascade API.
// Работает через HTTP и WebSocket, не импортирует внутренние пакеты
// системы. Используется для управления workflows и запуска выполнения.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Cascade API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	workflows, err := client.ListWorkflows(1, 10)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: cascade workflow list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - workflow: list, create, show, update, delete, states
//   - execute: node, next, parallel
//   - watch: поток событий broadcaster'а через WebSocket
//
// Каждая группа создаётся через фабричную функцию (NewWorkflowCmd и
// т.д.), принимающую clientFn и outputFn — замыкания для ленивого
// создания Client и Output после парсинга PersistentFlags.
package cli
