package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/JonMunkholm/chargeflow/internal/app"
	"github.com/JonMunkholm/chargeflow/internal/extract"
)

func TestParseDay(t *testing.T) {
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-01-15", "2024-01-15 10:30:00", "01/15/2024"} {
		got, err := parseDay("start", in)
		if err != nil {
			t.Errorf("parseDay(%q) error = %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("parseDay(%q) = %v, want %v", in, got, want)
		}
	}

	if got, err := parseDay("start", ""); got != nil || err != nil {
		t.Errorf("parseDay(\"\") = %v, %v, want nil, nil", got, err)
	}
	if _, err := parseDay("start", "yesterday-ish"); err == nil {
		t.Error("parseDay(garbage) error = nil")
	}
}

func TestExtractTargetsRegistered(t *testing.T) {
	for name, key := range extractTargets {
		if _, ok := extract.Lookup(key); !ok {
			t.Errorf("target %q maps to unregistered source %q", name, key)
		}
	}
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd(&cli{})
	for _, path := range [][]string{
		{"load"}, {"transform"}, {"reset"},
		{"schema", "create"}, {"schema", "validate"},
		{"stats", "integrity"},
		{"report", "daily"}, {"report", "trends"},
		{"extract"}, {"extract", "check"},
		{"history", "export"}, {"history", "list"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd == root {
			t.Errorf("command %v not found", path)
		}
	}
}

func TestExtractRejectsUnknownTarget(t *testing.T) {
	cmd := newExtractCmd(&cli{})
	if err := cmd.Args(cmd, []string{"users"}); err == nil {
		t.Error("Args(users) error = nil")
	}
	if err := cmd.Args(cmd, []string{"charges"}); err != nil {
		t.Errorf("Args(charges) error = %v", err)
	}
}

func TestRunClosesApp(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{name: "command fails", args: []string{"report", "daily", "--start", "yesterday-ish"}, wantErr: true},
		{name: "help", args: []string{"help"}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &cli{app: &app.App{}, out: &bytes.Buffer{}}
			err := run(context.Background(), c, tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("run(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if c.app != nil {
				t.Errorf("app = %v, want closed", c.app)
			}
		})
	}
}
