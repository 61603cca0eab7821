package inliner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestInlinesQuotedInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "util.h", "int helper();\n")
	main := writeFile(t, dir, "main.cpp", "#include \"util.h\"\nint main() { return helper(); }\n")

	out, err := New().InlineFile(main)
	require.NoError(t, err)
	assert.Equal(t, "int helper();\nint main() { return helper(); }\n", string(out))
}

func TestAngleIncludesStay(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "main.cpp", "#include <vector>\nint main() { return 0; }\n")

	out, err := New().InlineFile(main)
	require.NoError(t, err)
	assert.Contains(t, string(out), "#include <vector>")
}

func TestUnresolvableQuotedIncludeStays(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "main.cpp", "#include \"missing.h\"\nint main() { return 0; }\n")

	out, err := New().InlineFile(main)
	require.NoError(t, err)
	assert.Contains(t, string(out), "#include \"missing.h\"")
}

func TestEachFileInlinedOnce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shared.h", "int shared();\n")
	writeFile(t, dir, "a.h", "#include \"shared.h\"\nint a();\n")
	writeFile(t, dir, "b.h", "#include \"shared.h\"\nint b();\n")
	main := writeFile(t, dir, "main.cpp", "#include \"a.h\"\n#include \"b.h\"\nint main() { return 0; }\n")

	out, err := New().InlineFile(main)
	require.NoError(t, err)
	text := string(out)
	assert.Equal(t, 1, strings.Count(text, "int shared();"))
	assert.Contains(t, text, "int a();")
	assert.Contains(t, text, "int b();")
}

func TestMutualInclusionTerminates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "x.h", "#include \"y.h\"\nint x();\n")
	writeFile(t, dir, "y.h", "#include \"x.h\"\nint y();\n")
	main := writeFile(t, dir, "main.cpp", "#include \"x.h\"\nint main() { return 0; }\n")

	out, err := New().InlineFile(main)
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "int x();")
	assert.Contains(t, text, "int y();")
}

func TestPragmaOnceDropped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "guard.h", "#pragma once\nint guarded();\n")
	main := writeFile(t, dir, "main.cpp", "#include \"guard.h\"\nint main() { return 0; }\n")

	out, err := New().InlineFile(main)
	require.NoError(t, err)
	text := string(out)
	assert.NotContains(t, text, "#pragma once")
	assert.Contains(t, text, "int guarded();")
}

func TestIncludeDirsSearched(t *testing.T) {
	srcDir := t.TempDir()
	incDir := t.TempDir()
	writeFile(t, incDir, "lib/api.h", "int api();\n")
	main := writeFile(t, srcDir, "main.cpp", "#include \"lib/api.h\"\nint main() { return 0; }\n")

	out, err := New(incDir).InlineFile(main)
	require.NoError(t, err)
	assert.Contains(t, string(out), "int api();")
}

func TestParseInclude(t *testing.T) {
	tests := []struct {
		line   string
		name   string
		quoted bool
	}{
		{`#include "a.h"`, "a.h", true},
		{`  #  include   "b.h"`, "b.h", true},
		{`#include <vector>`, "vector", false},
		{`#define X 1`, "", false},
		{`int x;`, "", false},
		{`// #include "c.h"`, "", false},
	}
	for _, tt := range tests {
		name, quoted := parseInclude(tt.line)
		assert.Equal(t, tt.name, name, "line %q", tt.line)
		assert.Equal(t, tt.quoted, quoted, "line %q", tt.line)
	}
}
