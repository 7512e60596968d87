// Package scheduler is the recurring loop that finds due tasks and hands
// them to the executor.
//
// A robfig/cron entry fires every Config.Interval. Each tick reads due(now)
// once and runs the tasks sequentially in store order; a tick that is still
// running when the next one fires causes that one to be skipped, so ticks
// never overlap. A failing or panicking task is logged and the tick goes on.
package scheduler
