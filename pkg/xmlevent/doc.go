// Package xmlevent provides a pull-based XML event source for dispatching.
// It reads an xmltext token stream and reports start, end and text events
// with literal qualified names, folds self-closing elements into a single
// start event, and skips comments, processing instructions and directives.
// Tokenizer failures become classified dispatch errors.
package xmlevent
