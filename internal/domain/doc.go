// Package domain contains the entities of the audio processing pipeline:
// the AudioRecord being processed, the Task that tracks it through the
// pipeline state machine, and the Result produced when it completes.
//
// Entities expose explicit mutators for every state change so that
// timestamps and error fields are maintained in one place rather than by
// the persistence layer.
package domain
