// Package html extracts the visible text of HTML corpus files and of
// HTML-only email bodies, dropping scripts, styles and markup.
package html
