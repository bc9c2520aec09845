package sqlite

import (
	"io"
	"log"
)

var diagLogger *log.Logger

// SetLogWriters configures logging for the storage package. Only the diag
// stream is used (migrations, run lifecycle). Pass nil to disable it.
func SetLogWriters(ops, diag, trace io.Writer) {
	if diag == nil {
		diagLogger = nil
		return
	}
	diagLogger = log.New(diag, "[storage] ", log.LstdFlags|log.Lmicroseconds)
}

func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}
