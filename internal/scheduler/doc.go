// Package scheduler реализует задержку wait-узлов.
//
// Scheduler — потребитель очереди jobs.delayed. Задержка реализуется
// ожиданием в слоте consumer'а: сообщение не подтверждается до
// истечения delay, после чего wait-узел выполняется движком инлайн.
// Рестарт во время ожидания возвращает job в очередь, задержка
// отрабатывается заново.
package scheduler
