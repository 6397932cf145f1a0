// Package memory provides in-memory implementations of the driven storage
// ports. They back "triage draft" runs without a data directory and the
// service tests.
package memory
