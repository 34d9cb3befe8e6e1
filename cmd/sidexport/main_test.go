package main

import (
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/QEStudios/SIDExporter/export"
	"github.com/QEStudios/SIDExporter/sid"
)

const scaleScript = "../../parser/script/testdata/scale.lua"

// trackClose makes load report whether the composition was released.
func trackClose(t *testing.T) *bool {
	t.Helper()
	logger = log.New(io.Discard, "", 0)

	closed := new(bool)
	load = func(path string) (export.Composition, bool, func(), error) {
		c, pal, closeFn, err := loadComposition(path)
		if err != nil {
			return nil, false, nil, err
		}
		return c, pal, func() {
			*closed = true
			closeFn()
		}, nil
	}
	t.Cleanup(func() { load = loadComposition })
	return closed
}

func TestRunExportsScript(t *testing.T) {
	closed := trackClose(t)
	out := filepath.Join(t.TempDir(), "scale.sid")

	if err := run([]string{scaleScript, "-o", out, "--all"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !*closed {
		t.Error("composition was not closed")
	}

	f, err := sid.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if f.Header.Songs != 2 {
		t.Errorf("header lists %d songs, want 2", f.Header.Songs)
	}
}

func TestRunClosesOnExportError(t *testing.T) {
	closed := trackClose(t)
	out := filepath.Join(t.TempDir(), "missing", "scale.sid")

	err := run([]string{scaleScript, "-o", out})
	if !errors.Is(err, export.ErrStorageOpen) {
		t.Fatalf("run error = %v, want ErrStorageOpen", err)
	}
	if !*closed {
		t.Error("composition was not closed after the export failed")
	}
}

func TestRunBadArguments(t *testing.T) {
	trackClose(t)
	for _, args := range [][]string{
		{"--no-such-flag"},
		{"composition.mod"},
		{filepath.Join(t.TempDir(), "missing.lua")},
	} {
		if err := run(args); err == nil {
			t.Errorf("run(%q) succeeded", args)
		}
	}
}
