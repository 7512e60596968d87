// Package task holds the scheduled task model shared by the store, the
// executor, the scheduler loop and the management API.
//
// Status transitions:
//
//	active -> paused -> active    (operator)
//	active -> completed           (automatic, once tasks only)
//
// completed is terminal. Deleted tasks are gone; their run log stays.
package task
