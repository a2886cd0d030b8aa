// Package detectors holds the anomaly rules run over a detection set.
//
// Every detector is a pure function of the set: it reads entities, events,
// snapshots and relationships and returns insights with deterministic IDs.
// Detectors never share state, so the detection service runs them in parallel.
package detectors
