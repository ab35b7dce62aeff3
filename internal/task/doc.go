// Package task runs the audio processing pipeline for queued resources.
//
// A Processor handles one delivered message: it guards the task's state,
// loads the audio, transcribes and analyzes it, and persists the result.
// Every stage failure is classified into a Kind, and Decide maps the kind
// and the task's retry count to the action taken on the delivery. A Runner
// binds a fixed number of consumers to the broker and applies those
// actions, and a Reaper returns tasks abandoned in processing to the queue.
package task
