// Package logging provides file-based structured logging with size-based
// rotation for the ISCC similarity index. store.Open uses it to write each
// index's log (map-growth events, commit failures) to index.log inside the
// index directory, without copying it to stderr.
//
// DefaultConfig writes to ~/.iscc-idx/logs/isccidx.log and also to stderr.
package logging
