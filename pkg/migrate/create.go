package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var unsafeNameRe = regexp.MustCompile(`[^a-z0-9]+`)

const sqlTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert %[1]s
-- +goose StatementEnd
`

// CreateSQLMigration writes <dir>/<YYYYMMDDHHMMSS>_<name>.sql. The version
// is bumped past the newest existing file so goose never sees one out of
// order, even when clocks differ between developers.
func CreateSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := strings.Trim(unsafeNameRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	latest, err := LatestVersion(os.DirFS(dir))
	if err != nil {
		return "", err
	}
	stamp := now.UTC()
	if versionOf(stamp) <= latest {
		newest, err := time.Parse(versionLayout, strconv.FormatInt(latest, 10))
		if err != nil {
			return "", fmt.Errorf("parse version %d: %w", latest, err)
		}
		stamp = newest.Add(time.Second)
	}

	path := filepath.Join(dir, fmt.Sprintf("%d_%s.sql", versionOf(stamp), slug))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, sqlTemplate, slug); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

const versionLayout = "20060102150405"

func versionOf(t time.Time) int64 {
	v, _ := strconv.ParseInt(t.Format(versionLayout), 10, 64)
	return v
}
