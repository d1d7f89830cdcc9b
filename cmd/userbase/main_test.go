package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
)

func run(args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestCLI_MigrateAndManageUsers(t *testing.T) {
	c := qt.New(t)

	dbURL := "sqlite://" + filepath.Join(c.TempDir(), "cli.db")

	out, err := run("migrate", "up", "--db-url", dbURL, "--log-level", "error")
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Contains, "2 migration(s) up")

	out, err = run("migrate", "up", "--db-url", dbURL, "--log-level", "error")
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Contains, "Nothing to do")

	out, err = run("migrate", "status", "--db-url", dbURL, "--log-level", "error")
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Contains, "Pending: 0")

	out, err = run("user", "create", "--db-url", dbURL, "--log-level", "error",
		"--email", "A@X.com", "--password", "Str0ng!pass", "--first-name", "Ann")
	c.Assert(err, qt.IsNil)

	var created struct {
		ID    string `json:"user_id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	c.Assert(json.Unmarshal([]byte(out), &created), qt.IsNil)
	c.Assert(created.Email, qt.Equals, "a@x.com")
	c.Assert(created.Role, qt.Equals, "Guest")

	out, err = run("user", "get", "a@x.com", "--db-url", dbURL, "--log-level", "error")
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Contains, created.ID)
	c.Assert(out, qt.Not(qt.Contains), "password")

	out, err = run("user", "update-info", created.ID, "last_name=Lee", "first_name=", "--db-url", dbURL, "--log-level", "error")
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Contains, `"last_name": "Lee"`)
	c.Assert(out, qt.Not(qt.Contains), "first_name")

	out, err = run("user", "list", "--db-url", dbURL, "--log-level", "error")
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Contains, "1 of 1 user(s)")

	out, err = run("user", "delete", created.ID, "--db-url", dbURL, "--log-level", "error")
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Contains, "Deleted user "+created.ID)

	_, err = run("user", "delete", created.ID, "--db-url", dbURL, "--log-level", "error")
	c.Assert(err, qt.ErrorMatches, ".*not found.*")

	out, err = run("migrate", "down", "--steps", "5", "--db-url", dbURL, "--log-level", "error")
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Contains, "2 migration(s) down")
}

func TestCLI_Errors(t *testing.T) {
	dbURL := "sqlite://" + filepath.Join(t.TempDir(), "errors.db")

	tests := []struct {
		name string
		args []string
		err  string
	}{
		{
			name: "missing database url",
			args: []string{"migrate", "status"},
			err:  "database URL is required.*",
		},
		{
			name: "invalid target",
			args: []string{"migrate", "up", "--target", "latest", "--db-url", dbURL},
			err:  `invalid --target "latest".*`,
		},
		{
			name: "invalid steps",
			args: []string{"migrate", "down", "--steps", "0", "--db-url", dbURL},
			err:  `invalid --steps "0".*`,
		},
		{
			name: "weak password",
			args: []string{"user", "create", "--email", "a@x.com", "--password", "short", "--db-url", dbURL},
			err:  ".*must be 8 to 64 characters long.*",
		},
		{
			name: "unknown profile field",
			args: []string{"user", "update-info", "0b7e7c8e-9f5a-4b8e-9d7a-2f1c3e4d5a6b", "nickname=x", "--db-url", dbURL},
			err:  `unknown profile field "nickname"`,
		},
		{
			name: "bad user id",
			args: []string{"user", "delete", "nope", "--db-url", dbURL},
			err:  `invalid user id "nope".*`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)

			_, err := run(append(tt.args, "--log-level", "error")...)
			c.Assert(err, qt.ErrorMatches, tt.err)
		})
	}
}

func TestCLI_MigrateNew(t *testing.T) {
	c := qt.New(t)

	dir := c.TempDir()
	out, err := run("migrate", "new", "--name", "add_avatars", "--output-dir", dir)
	c.Assert(err, qt.IsNil)
	c.Assert(strings.Count(out, filepath.Join(dir, "")), qt.Equals, 2)
	c.Assert(out, qt.Contains, "_add_avatars.up.sql")
}

func TestCLI_FlagValuesPerInvocation(t *testing.T) {
	c := qt.New(t)

	dbURL := "sqlite://" + filepath.Join(c.TempDir(), "repeat.db")

	steps := []struct {
		args []string
		err  string
		out  []string
	}{
		{
			args: []string{"migrate", "up", "--target", "20250601120000", "--db-url", dbURL},
			out:  []string{"1 migration(s) up"},
		},
		{
			args: []string{"migrate", "up", "--db-url", dbURL},
			out:  []string{"up 20250601121500", "1 migration(s) up"},
		},
		{
			args: []string{"migrate", "up", "--target", "latest", "--db-url", dbURL},
			err:  `invalid --target "latest".*`,
		},
		{
			args: []string{"user", "create", "--email", "first@x.com", "--password", "Str0ng!pass", "--role", "Admin", "--db-url", dbURL},
			out:  []string{`"first@x.com"`, `"Admin"`},
		},
		{
			args: []string{"user", "create", "--email", "second@x.com", "--password", "Str0ng!pass", "--db-url", dbURL},
			out:  []string{`"second@x.com"`, `"Guest"`},
		},
		{
			args: []string{"user", "create", "--email", "third@x.com", "--password", "short", "--db-url", dbURL},
			err:  ".*must be 8 to 64 characters long.*",
		},
		{
			args: []string{"user", "list", "--page", "2", "--per-page", "1", "--db-url", dbURL},
			out:  []string{"1 of 2 user(s)"},
		},
		{
			args: []string{"user", "list", "--db-url", dbURL},
			out:  []string{"first@x.com", "second@x.com", "2 of 2 user(s)"},
		},
		{
			args: []string{"migrate", "down", "--steps", "2", "--db-url", dbURL},
			out:  []string{"2 migration(s) down"},
		},
		{
			args: []string{"migrate", "down", "--steps", "0", "--db-url", dbURL},
			err:  `invalid --steps "0".*`,
		},
	}

	for _, step := range steps {
		out, err := run(append(step.args, "--log-level", "error")...)
		if step.err != "" {
			c.Assert(err, qt.ErrorMatches, step.err, qt.Commentf("%v", step.args))
			continue
		}
		c.Assert(err, qt.IsNil, qt.Commentf("%v", step.args))
		for _, want := range step.out {
			c.Assert(out, qt.Contains, want, qt.Commentf("%v", step.args))
		}
	}

	dirA, dirB := c.TempDir(), c.TempDir()
	out, err := run("migrate", "new", "--name", "first_change", "--output-dir", dirA)
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Contains, filepath.Join(dirA, ""))
	c.Assert(out, qt.Contains, "_first_change.up.sql")

	out, err = run("migrate", "new", "--name", "second_change", "--output-dir", dirB)
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Contains, filepath.Join(dirB, ""))
	c.Assert(out, qt.Contains, "_second_change.up.sql")
	c.Assert(out, qt.Not(qt.Contains), "first_change")
}
