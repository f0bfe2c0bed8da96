package migrations

import (
	"io/fs"
	"strconv"
	"strings"
	"testing"
)

func TestMigrationsAreVersionedGooseFiles(t *testing.T) {
	names, err := fs.Glob(FS, "*.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 {
		t.Fatal("no migrations embedded")
	}

	seen := map[int]string{}
	for i, name := range names {
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			t.Errorf("%s: missing version prefix", name)
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			t.Errorf("%s: version %q is not numeric", name, prefix)
			continue
		}
		if prev, dup := seen[version]; dup {
			t.Errorf("%s: version %d already used by %s", name, version, prev)
		}
		seen[version] = name
		if version != i+1 {
			t.Errorf("%s: version %d, want %d", name, version, i+1)
		}

		body, err := fs.ReadFile(FS, name)
		if err != nil {
			t.Fatal(err)
		}
		text := string(body)
		if !strings.HasPrefix(text, "-- +goose Up") {
			t.Errorf("%s: must start with a goose Up annotation", name)
		}
		if !strings.Contains(text, "-- +goose Down") {
			t.Errorf("%s: missing goose Down section", name)
		}
	}
}

func TestDismissalColumnMigration(t *testing.T) {
	body, err := fs.ReadFile(FS, "002_transaction_dismissal.sql")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "dismissed_at") {
		t.Error("dismissal migration does not add dismissed_at")
	}
}
