// Package events defines the named events pushed to status subscribers and
// the Sink interface that delivers them.
//
// The event kinds are:
// - connected: sent once when a subscription is registered
// - status-update: sent each time a task's status is seen to change
package events
