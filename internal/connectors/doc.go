// Package connectors holds the adapters that pull content from outside
// sources: the on-disk knowledge corpus and the Gmail mailbox.
package connectors
