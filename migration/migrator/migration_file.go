package migrator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// versionLayout derives migration versions from their creation time.
const versionLayout = "20060102150405"

var migrationFileRegex = regexp.MustCompile(`^(\d+)_([A-Za-z0-9_\-]+)\.(up|down)\.sql$`)

var nonIdentRegex = regexp.MustCompile(`[^a-z0-9]+`)

// MigrationFile is a parsed migration file name.
type MigrationFile struct {
	Version   int64
	Name      string
	Direction string
}

// ParseMigrationFileName parses names following the NNNN_description.(up|down).sql
// convention. The description is turned into a human label, e.g.
// "create_users_table" becomes "Create Users Table".
func ParseMigrationFileName(filename string) (*MigrationFile, error) {
	matches := migrationFileRegex.FindStringSubmatch(filename)
	if matches == nil {
		return nil, fmt.Errorf("invalid migration filename: %s", filename)
	}

	version, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid migration version in %s: %w", filename, err)
	}

	words := strings.ReplaceAll(strings.ReplaceAll(matches[2], "_", " "), "-", " ")
	return &MigrationFile{
		Version:   version,
		Name:      cases.Title(language.English).String(words),
		Direction: matches[3],
	}, nil
}

// GenerateMigrationFileName builds the file name for one direction of a migration.
func GenerateMigrationFileName(version int64, description, direction string) string {
	name := strings.Trim(nonIdentRegex.ReplaceAllString(strings.ToLower(description), "_"), "_")
	if name == "" {
		name = "migration"
	}
	return fmt.Sprintf("%d_%s.%s.sql", version, name, direction)
}

// GetNextMigrationVersion returns a version derived from the current UTC time.
func GetNextMigrationVersion() int64 {
	return VersionFromTime(time.Now())
}

// VersionFromTime formats t as a YYYYMMDDHHMMSS version number.
func VersionFromTime(t time.Time) int64 {
	version, _ := strconv.ParseInt(t.UTC().Format(versionLayout), 10, 64)
	return version
}
