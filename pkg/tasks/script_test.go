package tasks

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"mvdan.cc/sh/v3/syntax"
)

func writeScript(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, "tasks.star")
	writeFile(t, path, content)
	return path
}

func TestLoadScriptRegistersDeclaredTasks(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, `
def configure():
    task(
        "hello",
        desc = "Greets the world",
        cmds = [],
    )
`)

	reg := NewRegistry()
	if err := LoadScript(testCtx(), reg, dir, path); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	task, ok := reg.Get("hello")
	if !ok {
		t.Fatal("expected the hello task to be registered")
	}
	if task.Desc != "Greets the world" {
		t.Errorf("unexpected description %q", task.Desc)
	}
	if task.Hidden {
		t.Error("named tasks must be visible")
	}
}

func TestLoadScriptHidesUnnamedTasks(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, `
def configure():
    task(cmds = [])
`)

	reg := NewRegistry()
	if err := LoadScript(testCtx(), reg, dir, path); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	names := reg.Names()
	if len(names) != 1 {
		t.Fatalf("expected one task, got %v", names)
	}
	if !strings.HasPrefix(names[0], "auto#") {
		t.Errorf("expected a generated name, got %s", names[0])
	}

	task, _ := reg.Get(names[0])
	if !task.Hidden {
		t.Error("unnamed tasks must be hidden")
	}
}

func TestLoadScriptRequiresConfigure(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, `x = 1`)

	if err := LoadScript(testCtx(), NewRegistry(), dir, path); err == nil {
		t.Fatal("expected an error for the missing configure function")
	}
}

func TestLoadScriptRejectsConfigureValue(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, `configure = 42`)

	if err := LoadScript(testCtx(), NewRegistry(), dir, path); err == nil {
		t.Fatal("expected an error for a non-callable configure")
	}
}

func TestLoadScriptRejectsReservedName(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, `
def configure():
    task("configure")
`)

	if err := LoadScript(testCtx(), NewRegistry(), dir, path); err == nil {
		t.Fatal("expected an error for the reserved name")
	}
}

func TestLoadScriptReportsNameCollisions(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, `
def configure():
    task("clean", cmds = [])
`)

	reg := NewRegistry()
	reg.Register("clean", nil, nil)

	err := LoadScript(testCtx(), reg, dir, path)
	if !eris.Is(err, ErrDuplicateTask) {
		t.Fatalf("expected ErrDuplicateTask, got %v", err)
	}
}

func TestScriptTaskRunsCommands(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix paths")
	}

	dir := t.TempDir()
	path := writeScript(t, dir, `
def configure():
    task(
        "gen",
        desc = "Generates a file",
        cmds = [
            "mkdir -p out",
            "echo hello > out/result.txt",
        ],
    )
`)

	reg := NewRegistry()
	if err := LoadScript(testCtx(), reg, dir, path); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if err := reg.Run(testCtx(), "gen"); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	content, err := ioutil.ReadFile(filepath.Join(dir, "out", "result.txt"))
	if err != nil {
		t.Fatalf("expected the generated file: %v", err)
	}
	if strings.TrimSpace(string(content)) != "hello" {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestScriptTaskRunsTaskReferences(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix paths")
	}

	dir := t.TempDir()
	path := writeScript(t, dir, `
def configure():
    prep = task("prep", cmds = ["mkdir -p out"])
    task("main", cmds = [prep, "echo done > out/done.txt"])
`)

	reg := NewRegistry()
	if err := LoadScript(testCtx(), reg, dir, path); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if err := reg.Run(testCtx(), "main"); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "out", "done.txt")); err != nil {
		t.Fatalf("expected the generated file: %v", err)
	}
}

func TestScriptTaskAppliesEnvOverrides(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix paths")
	}

	dir := t.TempDir()
	path := writeScript(t, dir, `
def configure():
    setenv("GREETING", "hi")
    task("gen", cmds = ["echo $GREETING > out.txt"])
`)

	reg := NewRegistry()
	if err := LoadScript(testCtx(), reg, dir, path); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if err := reg.Run(testCtx(), "gen"); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	content, err := ioutil.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil {
		t.Fatalf("expected the generated file: %v", err)
	}
	if strings.TrimSpace(string(content)) != "hi" {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestRunScriptTaskHonorsForce(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix paths")
	}

	dir := t.TempDir()
	path := writeScript(t, dir, `
def configure():
    task(
        "gen",
        skip_if_exists = ["marker.txt"],
        cmds = ["echo ran >> log.txt"],
    )
`)

	reg := NewRegistry()
	if err := LoadScript(testCtx(), reg, dir, path); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	writeFile(t, filepath.Join(dir, "marker.txt"), "")

	if err := reg.Run(testCtx(), "gen"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "log.txt")); !eris.Is(err, os.ErrNotExist) {
		t.Fatal("expected the marker to skip the commands")
	}

	ctx := NewRunContext(testCtx(), false, true)
	if err := reg.Run(ctx, "gen"); err != nil {
		t.Fatalf("forced run failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "log.txt")); err != nil {
		t.Fatalf("expected force to run the commands: %v", err)
	}
}

func TestScriptTaskUpToDateSkipFiles(t *testing.T) {
	dir := t.TempDir()
	st := &scriptTask{name: "gen", base: dir, skipIfExists: []string{"done.marker"}}

	upToDate, err := scriptTaskUpToDate(testCtx(), st)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if upToDate {
		t.Fatal("expected a missing marker to force a run")
	}

	writeFile(t, filepath.Join(dir, "done.marker"), "")

	upToDate, err = scriptTaskUpToDate(testCtx(), st)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !upToDate {
		t.Fatal("expected the existing marker to skip the task")
	}
}

func TestScriptTaskUpToDateComparesTimestamps(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.txt")
	output := filepath.Join(dir, "out.txt")
	writeFile(t, input, "in")
	writeFile(t, output, "out")

	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(input, old, old); err != nil {
		t.Fatalf("failed to age the input: %v", err)
	}

	st := &scriptTask{
		name:    "gen",
		base:    dir,
		inputs:  []string{"in.txt"},
		outputs: []string{"out.txt"},
	}

	upToDate, err := scriptTaskUpToDate(testCtx(), st)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !upToDate {
		t.Fatal("expected a fresh output to skip the task")
	}

	newer := time.Now().Add(time.Hour)
	if err := os.Chtimes(input, newer, newer); err != nil {
		t.Fatalf("failed to touch the input: %v", err)
	}

	upToDate, err = scriptTaskUpToDate(testCtx(), st)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if upToDate {
		t.Fatal("expected a stale output to force a run")
	}
}

func TestArgvToCallQuotesArguments(t *testing.T) {
	cmd, err := argvToCall(starlark.Tuple{starlark.String("echo"), starlark.String("hello world")})
	if err != nil {
		t.Fatalf("conversion failed: %v", err)
	}

	buffer := strings.Builder{}
	printer := syntax.NewPrinter(syntax.Minify(true))
	if err := printer.Print(&buffer, cmd); err != nil {
		t.Fatalf("print failed: %v", err)
	}

	if buffer.String() != "echo 'hello world'" {
		t.Fatalf("unexpected command %q", buffer.String())
	}
}

func TestArgvToCallRejectsNonStrings(t *testing.T) {
	if _, err := argvToCall(starlark.Tuple{starlark.MakeInt(42)}); err == nil {
		t.Fatal("expected an error for non-string arguments")
	}
}

func TestStringList(t *testing.T) {
	values, err := stringList(nil, "deps")
	if err != nil || len(values) != 0 {
		t.Fatalf("expected nil lists to be empty: %v %v", values, err)
	}

	list := starlark.NewList([]starlark.Value{starlark.String("a"), starlark.String("b")})
	values, err = stringList(list, "deps")
	if err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if strings.Join(values, " ") != "a b" {
		t.Fatalf("unexpected values %v", values)
	}

	mixed := starlark.NewList([]starlark.Value{starlark.String("ok"), starlark.MakeInt(1)})
	if _, err := stringList(mixed, "deps"); err == nil {
		t.Fatal("expected an error for mixed lists")
	}
}

func TestSplitShortFlags(t *testing.T) {
	flags, rest := splitShortFlags([]string{"-rf", "one", "-p", "two"})
	if flags != "rfp" {
		t.Errorf("unexpected flags %q", flags)
	}
	if strings.Join(rest, " ") != "one two" {
		t.Errorf("unexpected arguments %v", rest)
	}
}
