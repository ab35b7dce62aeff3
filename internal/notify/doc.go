// Package notify pushes task status changes to connected subscribers.
//
// A Notifier polls the task store on a fixed interval and, for every
// registered subscription, compares each task's status against the last
// status that subscriber was sent. Only changes produce a status-update
// event. Subscribers whose connection fails are dropped without affecting
// the others, and subscriptions older than the configured lifetime are
// closed.
package notify
