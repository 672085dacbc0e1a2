// Package jobmanager supervises runs of the external compiler driver as
// Jobs.
//
// A Job owns one driver process. It accumulates the process' combined
// stdout/stderr, tracks a Created → Running → Stopped state machine and
// notifies observers of new output and of the process stopping.
//
// A Controller builds driver flags, spawns Jobs and keeps a registry of the
// Jobs that are still running.
package jobmanager
