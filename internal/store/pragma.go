package store

import (
	"context"
	"log"
	"strings"
)

// tuningPragmas trade some durability on power loss for write throughput.
var tuningPragmas = []string{
	"synchronous=NORMAL",
	"wal_autocheckpoint=1000",
	"temp_store=MEMORY",
	"mmap_size=268435456",
}

// Tune applies tuningPragmas and logs the value SQLite reports back for
// each. Failures are logged and skipped.
func (s *Store) Tune(ctx context.Context) {
	for _, p := range tuningPragmas {
		name, _, _ := strings.Cut(p, "=")
		if _, err := s.db.ExecContext(ctx, "PRAGMA "+p+";"); err != nil {
			log.Printf("store: pragma %s failed: %v", p, err)
			continue
		}
		var value any
		if err := s.db.QueryRowContext(ctx, "PRAGMA "+name+";").Scan(&value); err != nil {
			log.Printf("store: read pragma %s: %v", name, err)
			continue
		}
		log.Printf("store: pragma %s => %v", name, value)
	}
}
