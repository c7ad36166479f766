// Package scheduler drives recurring jobs from schedule strings (cron expressions,
// Go durations or HH:MM intervals) on top of robfig/cron.
//
// Runs of the same job never overlap: a trigger that fires while the previous run
// is still in flight is skipped. Each run gets a context that is cancelled when the
// scheduler stops or the job's timeout elapses.
package scheduler
