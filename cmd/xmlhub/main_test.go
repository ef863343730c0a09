package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const ordersXML = `<orders>
  <order id="1"><line>widget</line></order>
  <order id="2"><line>gear</line><line>bolt</line></order>
</orders>`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := runWithArgs(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, stdout, _ := runCLI("version")
	assert.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(stdout, "xmlhub dev"), stdout)
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no files", args: []string{"process"}},
		{name: "bad bind", args: []string{"process", "--bind", "order", "a.xml"}},
		{name: "unknown handler", args: []string{"process", "--bind", "order=xslt", "a.xml"}},
		{name: "bad jobs", args: []string{"process", "--jobs", "0", "a.xml"}},
		{name: "unknown flag", args: []string{"process", "--nope", "a.xml"}},
		{name: "unknown command", args: []string{"frobnicate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(tt.args...)
			assert.Equal(t, 2, code)
			assert.Contains(t, stderr, "error:")
		})
	}
}

func TestProcessBindings(t *testing.T) {
	dir := t.TempDir()
	doc := writeFile(t, dir, "orders.xml", ordersXML)

	code, stdout, stderr := runCLI("process", "--bind", "order=json", "--bind", "line=count", doc)
	require.Equal(t, 0, code, stderr)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "1", gjson.Get(lines[0], "attrs.id").String())
	assert.Equal(t, "2", gjson.Get(lines[1], "attrs.id").String())
	assert.Equal(t, doc, gjson.Get(lines[2], "source").String())
	assert.Equal(t, int64(3), gjson.Get(lines[2], "counts.line").Int())
	assert.Contains(t, stderr, doc+": ok (6 elements, 5 handlers, depth 3")
}

func TestProcessMalformedDocument(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.xml", `<a/>`)
	bad := writeFile(t, dir, "bad.xml", `<a></b>`)

	code, _, stderr := runCLI("process", "--log-level", "error", good, bad)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, good+": ok")
	assert.Contains(t, stderr, bad+": [xml-unbalanced-end]")
	assert.Contains(t, stderr, "1 of 2 document(s) failed")
}

func TestProcessMissingFile(t *testing.T) {
	code, _, stderr := runCLI("process", filepath.Join(t.TempDir(), "missing.xml"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "open xml file")
}

func TestProcessParallelKeepsArgumentOrder(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		paths = append(paths, writeFile(t, dir, name+".xml", `<doc><item>`+name+`</item></doc>`))
	}

	args := append([]string{"process", "--jobs", "3", "--bind", "item=text"}, paths...)
	code, stdout, stderr := runCLI(args...)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "item\ta\nitem\tb\nitem\tc\nitem\td\nitem\te\n", stdout)
}

func TestProcessWithConfigAndLua(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "line.lua", `function on_text(v) emit(string.upper(v)) end`)
	cfg := writeFile(t, dir, "xmlhub.yaml", `
log:
  level: error
bindings:
  - element: line
    handler: lua
    script: line.lua
`)
	doc := writeFile(t, dir, "orders.xml", ordersXML)

	code, stdout, stderr := runCLI("process", "--config", cfg, doc)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "WIDGET\nGEAR\nBOLT\n", stdout)
}

func TestProcessConfigErrors(t *testing.T) {
	dir := t.TempDir()
	doc := writeFile(t, dir, "a.xml", `<a/>`)
	cfg := writeFile(t, dir, "bad.toml", "[log]\nlevel = \"loud\"\n")

	code, _, stderr := runCLI("process", "--config", cfg, doc)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "log level")

	code, _, _ = runCLI("process", "--config", filepath.Join(dir, "missing.toml"), doc)
	assert.Equal(t, 1, code)
}

func TestProcessProfiles(t *testing.T) {
	dir := t.TempDir()
	doc := writeFile(t, dir, "a.xml", `<a><b/></a>`)
	cpu := filepath.Join(dir, "cpu.out")
	mem := filepath.Join(dir, "mem.out")

	code, _, stderr := runCLI("process", "--cpuprofile", cpu, "--memprofile", mem, doc)
	require.Equal(t, 0, code, stderr)
	assert.FileExists(t, cpu)
	assert.FileExists(t, mem)
}

func TestServeStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	code := runContext(ctx, []string{"serve", "--addr", "127.0.0.1:0", "--log-level", "error"}, &stdout, &stderr)
	assert.Equal(t, 0, code, stderr.String())
}

func TestServeInvalidConfig(t *testing.T) {
	code, _, stderr := runCLI("serve", "--log-format", "xml")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "log format")
}
