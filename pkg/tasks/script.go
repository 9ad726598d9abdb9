package tasks

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/Polymer/tools-common/pkg"
)

// scriptCtx carries everything the script builtins need while a task script
// is being evaluated.
type scriptCtx struct {
	ctx          context.Context
	dir          string
	filepath     string
	envOverrides map[string]string
	tasks        []*scriptTask
}

func getScriptCtx(thread *starlark.Thread) *scriptCtx {
	return thread.Local("scriptCtx").(*scriptCtx)
}

func (sc *scriptCtx) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(sc.dir, path)
}

func (sc *scriptCtx) simplify(path string) string {
	rel, err := filepath.Rel(sc.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}

	return rel
}

type scriptCmd interface {
	shellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error)
	taskRef() string
}

type cmdScript struct {
	taskName string
	index    int
	content  string
}

func (c cmdScript) shellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error) {
	result, err := parser.Parse(strings.NewReader(c.content), fmt.Sprintf("%s:%d", c.taskName, c.index))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %s", c.content)
	}

	return result.Stmts, nil
}

func (c cmdScript) taskRef() string { return "" }

type cmdTaskRef struct {
	name string
}

func (c cmdTaskRef) shellStmts(*syntax.Parser) ([]*syntax.Stmt, error) { return nil, nil }

func (c cmdTaskRef) taskRef() string { return c.name }

// scriptTask contains the processed values passed to task() by the task
// script.
type scriptTask struct {
	env          map[string]string
	name         string
	desc         string
	base         string
	deps         []string
	skipIfExists []string
	inputs       []string
	outputs      []string
	cmds         []scriptCmd
	hidden       bool
}

// String returns a string representation of the task
func (t *scriptTask) String() string {
	return fmt.Sprintf("<task %s: %s>", t.name, t.desc)
}

// Type always returns "task" to indicate this type
func (t *scriptTask) Type() string {
	return "task"
}

// Freeze doesn't do anything since tasks are immutable anyway
func (t *scriptTask) Freeze() {}

// Truth always returns true since a task can't be nil or None
func (t *scriptTask) Truth() starlark.Bool {
	return starlark.True
}

// Hash always returns an error since task is not a hashable type
func (t *scriptTask) Hash() (uint32, error) {
	return 0, eris.New("task is not a hashable type")
}

func stringList(list *starlark.List, field string) ([]string, error) {
	if list == nil {
		return []string{}, nil
	}

	result := make([]string, 0, list.Len())
	iter := list.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		value, ok := item.(starlark.String)
		if !ok {
			return nil, eris.Errorf("expected all items in %s to be strings but found %s", field, item.Type())
		}

		result = append(result, value.GoString())
	}

	return result, nil
}

func argvToCall(parts starlark.Tuple) (*syntax.CallExpr, error) {
	cmd := new(syntax.CallExpr)
	cmd.Args = make([]*syntax.Word, len(parts))

	for idx, arg := range parts {
		value, ok := arg.(starlark.String)
		if !ok {
			return nil, eris.Errorf("found argument of type %s but only strings are supported: %s", arg.Type(), arg.String())
		}

		encoded := value.GoString()

		var wordPart syntax.WordPart
		if strings.ContainsAny(encoded, " $'") {
			node := new(syntax.SglQuoted)
			node.Value = encoded
			wordPart = node
		} else {
			node := new(syntax.Lit)
			node.Value = encoded
			wordPart = node
		}

		cmd.Args[idx] = &syntax.Word{Parts: []syntax.WordPart{wordPart}}
	}

	return cmd, nil
}

func info(thread *starlark.Thread, msg string, args ...interface{}) {
	sc := getScriptCtx(thread)
	pos := thread.CallFrame(1).Pos

	log(sc.ctx).Info().
		Msgf("%s:%d:%d: %s", sc.simplify(sc.filepath), pos.Line, pos.Col, fmt.Sprintf(msg, args...))
}

func warn(thread *starlark.Thread, msg string, args ...interface{}) {
	sc := getScriptCtx(thread)
	pos := thread.CallFrame(1).Pos

	log(sc.ctx).Warn().
		Msgf("%s:%d:%d: %s", sc.simplify(sc.filepath), pos.Line, pos.Col, fmt.Sprintf(msg, args...))
}

// * Builtin functions

func starInfo(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	info(thread, message)
	return starlark.None, nil
}

func starWarn(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	warn(thread, message)
	return starlark.None, nil
}

func starError(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	return nil, eris.New(message)
}

func getenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &key)
	if err != nil {
		return nil, err
	}

	envOverrides := getScriptCtx(thread).envOverrides
	value, ok := envOverrides[key]
	if !ok {
		value = os.Getenv(key)
	}

	return starlark.String(value), nil
}

func setenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	var value string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &key, &value)
	if err != nil {
		return nil, err
	}

	getScriptCtx(thread).envOverrides[key] = value
	return starlark.True, nil
}

func starIsdir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var dirPath string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &dirPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(getScriptCtx(thread).resolvePath(dirPath))
	return starlark.Bool(err == nil && info.IsDir()), nil
}

func starIsfile(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var filePath string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &filePath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(getScriptCtx(thread).resolvePath(filePath))
	return starlark.Bool(err == nil && info.Mode().IsRegular()), nil
}

func task(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var deps *starlark.List
	var skipIfExists *starlark.List
	var inputs *starlark.List
	var outputs *starlark.List
	var env *starlark.Dict
	var cmds *starlark.List

	st := new(scriptTask)

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name?", &st.name, "hidden?", &st.hidden,
		"desc?", &st.desc, "deps?", &deps, "base?", &st.base, "skip_if_exists?", &skipIfExists,
		"inputs?", &inputs, "outputs?", &outputs, "env?", &env, "cmds?", &cmds)
	if err != nil {
		return nil, err
	}

	sc := getScriptCtx(thread)

	if st.name == "" {
		st.hidden = true
		st.name = "auto#" + nanoid.New()
	}

	if st.name == "configure" {
		return nil, eris.New(`the task name "configure" is reserved, please use a different name`)
	}

	if st.base == "" {
		st.base = "."
	}
	st.base = sc.resolvePath(st.base)

	st.deps, err = stringList(deps, "deps")
	if err != nil {
		return nil, err
	}

	st.skipIfExists, err = stringList(skipIfExists, "skip_if_exists")
	if err != nil {
		return nil, err
	}

	st.inputs, err = stringList(inputs, "inputs")
	if err != nil {
		return nil, err
	}

	st.outputs, err = stringList(outputs, "outputs")
	if err != nil {
		return nil, err
	}

	st.env = map[string]string{}
	if env != nil {
		for _, rawKey := range env.Keys() {
			key, ok := rawKey.(starlark.String)
			if !ok {
				return nil, eris.Errorf("found key type %s in env map but only strings are supported", rawKey.Type())
			}

			rawValue, _, err := env.Get(rawKey)
			if err != nil {
				return nil, err
			}

			value, ok := rawValue.(starlark.String)
			if !ok {
				return nil, eris.Errorf("found value of type %s for key %s but only strings are supported", rawValue.Type(), key.GoString())
			}

			st.env[key.GoString()] = value.GoString()
		}
	}

	st.cmds = make([]scriptCmd, 0)
	if cmds != nil {
		strBuffer := strings.Builder{}
		printer := syntax.NewPrinter(syntax.Minify(true))
		iter := cmds.Iterate()
		defer iter.Done()

		var item starlark.Value
		idx := 0
		for iter.Next(&item) {
			switch value := item.(type) {
			case starlark.String:
				st.cmds = append(st.cmds, cmdScript{taskName: st.name, index: idx, content: value.GoString()})
			case starlark.Tuple:
				cmd, err := argvToCall(value)
				if err != nil {
					return nil, eris.Wrapf(err, "failed to process command #%d", idx)
				}

				strBuffer.Reset()
				err = printer.Print(&strBuffer, cmd)
				if err != nil {
					return nil, eris.Wrapf(err, "failed to process command #%d", idx)
				}

				st.cmds = append(st.cmds, cmdScript{taskName: st.name, index: idx, content: strBuffer.String()})
			case *starlark.List:
				parts := make(starlark.Tuple, 0, value.Len())
				subIter := value.Iterate()
				var subItem starlark.Value
				for subIter.Next(&subItem) {
					parts = append(parts, subItem)
				}
				subIter.Done()

				cmd, err := argvToCall(parts)
				if err != nil {
					return nil, eris.Wrapf(err, "failed to process command #%d", idx)
				}

				strBuffer.Reset()
				err = printer.Print(&strBuffer, cmd)
				if err != nil {
					return nil, eris.Wrapf(err, "failed to process command #%d", idx)
				}

				st.cmds = append(st.cmds, cmdScript{taskName: st.name, index: idx, content: strBuffer.String()})
			case *scriptTask:
				st.cmds = append(st.cmds, cmdTaskRef{name: value.name})
			default:
				return nil, eris.Errorf("%s: unexpected type %s. Only strings, tuples, lists and tasks are valid", fn.Name(), item.Type())
			}

			idx++
		}
	}

	if inputs != nil && inputs.Len() > 0 && (outputs == nil || outputs.Len() == 0) {
		warn(thread, "%s: found inputs but no outputs", fn.Name())
	}

	sc.tasks = append(sc.tasks, st)
	return st, nil
}

// LoadScript evaluates a starlark task script and registers the tasks its
// configure function declares. The script's global scope runs first, then
// configure() is called; every task() declared along the way ends up in the
// registry and can reference the built-in tasks as dependencies.
func LoadScript(ctx context.Context, reg *Registry, dir, filename string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return eris.Wrapf(err, "Failed to resolve %s", dir)
	}

	filename, err = filepath.Abs(filename)
	if err != nil {
		return eris.Wrapf(err, "Failed to resolve %s", filename)
	}

	builtins := starlark.StringDict{
		"OS":     starlark.String(runtime.GOOS),
		"ARCH":   starlark.String(runtime.GOARCH),
		"info":   starlark.NewBuiltin("info", starInfo),
		"warn":   starlark.NewBuiltin("warn", starWarn),
		"error":  starlark.NewBuiltin("error", starError),
		"getenv": starlark.NewBuiltin("getenv", getenv),
		"setenv": starlark.NewBuiltin("setenv", setenv),
		"isdir":  starlark.NewBuiltin("isdir", starIsdir),
		"isfile": starlark.NewBuiltin("isfile", starIsfile),
		"task":   starlark.NewBuiltin("task", task),
	}

	thread := &starlark.Thread{
		Name: "tasks",
		Print: func(thread *starlark.Thread, msg string) {
			log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	sc := scriptCtx{
		ctx:          ctx,
		dir:          absDir,
		filepath:     filename,
		envOverrides: map[string]string{},
		tasks:        make([]*scriptTask, 0),
	}
	thread.SetLocal("scriptCtx", &sc)

	scriptName := sc.simplify(filename)
	script, err := ioutil.ReadFile(filename)
	if err != nil {
		return eris.Wrapf(err, "failed to read file %s", scriptName)
	}

	globals, err := starlark.ExecFile(thread, scriptName, script, builtins)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return eris.Errorf("failed to execute %s:\n%s", scriptName, evalError.Backtrace())
		}
		return eris.Wrapf(err, "failed to execute %s", scriptName)
	}

	configure, ok := globals["configure"]
	if !ok {
		return eris.Errorf("%s did not declare a configure function", scriptName)
	}

	configureFunc, ok := configure.(starlark.Callable)
	if !ok {
		return eris.Errorf("%s did declare a configure value but it's not a function", scriptName)
	}

	_, err = starlark.Call(thread, configureFunc, make(starlark.Tuple, 0), make([]starlark.Tuple, 0))
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return eris.New(evalError.Backtrace())
		}
		return eris.Wrapf(err, "failed configure call in %s", scriptName)
	}

	for _, st := range sc.tasks {
		for name, value := range sc.envOverrides {
			if _, present := st.env[name]; !present {
				st.env[name] = value
			}
		}

		st := st
		err = reg.RegisterTask(&Task{
			Name:   st.name,
			Desc:   st.desc,
			Deps:   st.deps,
			Hidden: st.hidden,
			Action: func(ctx context.Context) error {
				return runScriptTask(ctx, reg, st)
			},
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// scriptTaskUpToDate checks the task's skip_if_exists files and compares the
// modification times of its inputs and outputs. True means there's nothing
// to do.
func scriptTaskUpToDate(ctx context.Context, st *scriptTask) (bool, error) {
	if len(st.skipIfExists) > 0 {
		skipList, err := resolvePatterns(st.base, st.skipIfExists)
		if err != nil {
			return false, eris.Wrap(err, "failed to resolve skip_if_exists list")
		}

		found := 0
		for _, item := range skipList {
			_, err := os.Stat(item)
			if err == nil {
				found++
			} else if !eris.Is(err, os.ErrNotExist) {
				return false, eris.Wrapf(err, "Failed to check %s", item)
			}
		}

		if found > 0 && found == len(skipList) {
			log(ctx).Info().
				Str("task", st.name).
				Msg("skipped because all skip files exist")
			return true, nil
		}
	}

	inputList, err := resolvePatterns(st.base, st.inputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve inputs")
	}

	var newestInput time.Time
	for _, item := range inputList {
		info, err := os.Stat(item)
		if err != nil {
			return false, eris.Wrapf(err, "Failed to check input %s", item)
		}

		if info.ModTime().After(newestInput) {
			newestInput = info.ModTime()
		}
	}

	if newestInput.IsZero() {
		return false, nil
	}

	outputList, err := resolvePatterns(st.base, st.outputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve output list")
	}

	var newestOutput time.Time
	for _, item := range outputList {
		info, err := os.Stat(item)
		if err != nil {
			if eris.Is(err, os.ErrNotExist) {
				continue
			}
			return false, eris.Wrapf(err, "Failed to check output %s", item)
		}

		if info.ModTime().After(newestOutput) {
			newestOutput = info.ModTime()
		}
	}

	if newestOutput.After(newestInput) {
		log(ctx).Info().
			Str("task", st.name).
			Msgf("nothing to do (output is %.0f seconds newer)", newestOutput.Sub(newestInput).Seconds())
		return true, nil
	}

	return false, nil
}

var (
	defaultExecHandler = interp.DefaultExecHandler(2 * time.Second)
	defaultOpenHandler = interp.DefaultOpenHandler()
)

func splitShortFlags(args []string) (string, []string) {
	flags := ""
	rest := []string{}

	for _, arg := range args {
		if strings.HasPrefix(arg, "-") && arg != "-" && arg != "--" {
			flags += strings.TrimLeft(arg, "-")
		} else {
			rest = append(rest, arg)
		}
	}

	return flags, rest
}

// scriptExecHandler reroutes rm, mv and mkdir to our cross-platform
// implementations so scripts behave the same on every OS.
func scriptExecHandler(ctx context.Context, args []string) error {
	if len(args) > 0 {
		hc := interp.HandlerCtx(ctx)

		switch args[0] {
		case "rm":
			flags, paths := splitShortFlags(args[1:])
			return pkg.RemovePaths(hc.Dir, paths, strings.Contains(flags, "r"), strings.Contains(flags, "f"))
		case "mv":
			_, paths := splitShortFlags(args[1:])
			return pkg.MovePaths(hc.Dir, paths)
		case "mkdir":
			flags, paths := splitShortFlags(args[1:])
			return pkg.MakeDirs(hc.Dir, paths, strings.Contains(flags, "p"))
		}
	}

	return defaultExecHandler(ctx, args)
}

func scriptOpenHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

func scriptTaskEnv(st *scriptTask) expand.Environ {
	envVars := os.Environ()

	for name, value := range st.env {
		envVars = append(envVars, fmt.Sprintf("%s=%s", name, value))
	}

	return expand.ListEnviron(envVars...)
}

func runScriptTask(ctx context.Context, reg *Registry, st *scriptTask) error {
	if !runForce(ctx) {
		upToDate, err := scriptTaskUpToDate(ctx, st)
		if err != nil {
			return err
		}
		if upToDate {
			return nil
		}
	}

	runner, err := interp.New(
		interp.Dir(st.base),
		interp.Env(scriptTaskEnv(st)),
		interp.ExecHandler(scriptExecHandler),
		interp.OpenHandler(scriptOpenHandler),
		interp.StdIO(nil, os.Stdout, os.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "Failed to initialize runner")
	}

	parser := syntax.NewParser()
	printer := syntax.NewPrinter(syntax.Minify(true))
	strBuffer := strings.Builder{}

	for _, item := range st.cmds {
		if ref := item.taskRef(); ref != "" {
			err := reg.Run(ctx, ref)
			if err != nil {
				return err
			}
			continue
		}

		stmts, err := item.shellStmts(parser)
		if err != nil {
			return err
		}

		for _, stmt := range stmts {
			strBuffer.Reset()
			printer.Print(&strBuffer, stmt)
			log(ctx).Info().
				Str("task", st.name).
				Bool("command", true).
				Msg(strBuffer.String())

			if runDryRun(ctx) {
				continue
			}

			err = runner.Run(ctx, stmt)
			if err != nil {
				return err
			}

			if runner.Exited() {
				return nil
			}
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}
