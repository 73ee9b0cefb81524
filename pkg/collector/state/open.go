package state

import "strings"

// Open selects a backend by path's extension: ".db" opens the
// relational (sqlite) store, anything else opens the document (JSON)
// store. This is the single point where the interchangeable-backend
// trait is resolved to a concrete implementation.
func Open(path string) (Store, error) {
	if strings.HasSuffix(strings.ToLower(path), ".db") {
		return OpenSQLStore(path)
	}
	return OpenDocumentStore(path)
}
