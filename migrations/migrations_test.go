package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEveryUpHasDown(t *testing.T) {
	ups, err := fs.Glob(FS, "*.up.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(ups) == 0 {
		t.Fatalf("expected embedded migrations")
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(FS, down); err != nil {
			t.Fatalf("missing %s for %s", down, up)
		}
	}
}

func TestSchemaGuardsOverlaps(t *testing.T) {
	rules, err := fs.ReadFile(FS, "000001_create_availability_rules.up.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(rules), "EXCLUDE USING gist") {
		t.Fatalf("expected exclusion constraint on availability rules")
	}
	appts, err := fs.ReadFile(FS, "000002_create_appointments.up.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(appts), "WHERE (status IN ('scheduled', 'confirmed'))") {
		t.Fatalf("expected double-booking guard limited to active statuses")
	}
}
