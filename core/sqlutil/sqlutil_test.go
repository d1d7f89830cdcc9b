package sqlutil_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/userbase/core/sqlutil"
)

func TestStripComments(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected string
	}{
		{
			name:     "line comment",
			sql:      "-- header\nSELECT 1;",
			expected: "\nSELECT 1;",
		},
		{
			name:     "block comment",
			sql:      "SELECT /* inline */ 1;",
			expected: "SELECT   1;",
		},
		{
			name:     "comment markers inside literal",
			sql:      "SELECT '-- not a comment /* nor this */';",
			expected: "SELECT '-- not a comment /* nor this */';",
		},
		{
			name:     "unterminated block comment",
			sql:      "SELECT 1; /* dangling",
			expected: "SELECT 1;  ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			c.Assert(sqlutil.StripComments(tt.sql), qt.Equals, tt.expected)
		})
	}
}

func TestSplitSQLStatements(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected []string
	}{
		{
			name:     "empty",
			sql:      "  \n ",
			expected: []string{},
		},
		{
			name:     "no trailing semicolon",
			sql:      "CREATE TABLE a (id INT); DROP TABLE b",
			expected: []string{"CREATE TABLE a (id INT)", "DROP TABLE b"},
		},
		{
			name:     "semicolon in single quotes",
			sql:      "INSERT INTO t VALUES ('a;b'); SELECT 1;",
			expected: []string{"INSERT INTO t VALUES ('a;b')", "SELECT 1"},
		},
		{
			name:     "escaped quote",
			sql:      "INSERT INTO t VALUES ('it''s; fine');",
			expected: []string{"INSERT INTO t VALUES ('it''s; fine')"},
		},
		{
			name:     "quoted identifiers",
			sql:      "SELECT \"a;b\" FROM `c;d`;",
			expected: []string{"SELECT \"a;b\" FROM `c;d`"},
		},
		{
			name: "dollar quoted body",
			sql: `CREATE FUNCTION touch() RETURNS trigger AS $body$
BEGIN NEW.updated = NOW(); RETURN NEW; END;
$body$ LANGUAGE plpgsql; SELECT 1;`,
			expected: []string{
				"CREATE FUNCTION touch() RETURNS trigger AS $body$\nBEGIN NEW.updated = NOW(); RETURN NEW; END;\n$body$ LANGUAGE plpgsql",
				"SELECT 1",
			},
		},
		{
			name:     "positional parameters are not dollar quotes",
			sql:      "SELECT $1; SELECT $2;",
			expected: []string{"SELECT $1", "SELECT $2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			c.Assert(sqlutil.SplitSQLStatements(tt.sql), qt.DeepEquals, tt.expected)
		})
	}
}
