// Package api содержит HTTP API поверх хранилища графа и очереди.
//
// API — тонкая граница: CRUD workflows, постановка выполнения в
// очередь и чтение execution states. Сама цепочка узлов выполняется
// worker'ами, API никогда не ждёт её завершения. Операции жизненного
// цикла (create/update/delete) рассылают события подписчикам.
//
// Структура ответов унифицирована: {"data": ...} для успеха,
// {"error": {"code", "message"}} для ошибок.
package api
