// Package worker содержит потребителя очереди jobs немедленного
// выполнения.
//
// Worker связывает очередь и движок: достаёт job, вызывает
// engine.ExecuteNode с номером попытки из payload'а и применяет
// политику retry. Повтор ведётся через re-enqueue с инкрементом
// счётчика попыток, а не средствами брокера, поэтому номер попытки
// всегда виден движку и логам.
package worker
