// Package events содержит WebSocket-рассылку событий WorkflowUpdate.
//
// Hub ведёт реестр живых подписчиков, Server принимает подключения
// (bearer-токен до upgrade) и отвечает на синхронные запросы
// workflow-status. Рассылка fire-and-forget: события не реплеятся,
// медленные подписчики отключаются, фильтрации по workflow нет —
// клиенты фильтруют сами.
package events
