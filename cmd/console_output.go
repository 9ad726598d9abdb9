package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// debugEnv enables full error chains and a field dump per event.
const debugEnv = "TOOLS_DEBUG"

// ConsoleWriter renders zerolog's JSON events as colored console lines.
// Events from task actions carry the task name as a prefix; the shell
// commands a script task executes are echoed like a prompt would.
type ConsoleWriter struct {
	buffer strings.Builder
	lock   sync.Mutex
}

func NewConsoleWriter() *ConsoleWriter {
	return &ConsoleWriter{}
}

func levelColor(level interface{}) string {
	switch level {
	case "fatal":
		fallthrough
	case "error":
		return "[red]"
	case "warn":
		return "[yellow]"
	case "debug":
		fallthrough
	case "trace":
		return "[blue]"
	default:
		return "[green]"
	}
}

func (w *ConsoleWriter) Write(p []byte) (n int, err error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	var evt map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	err = d.Decode(&evt)
	if err != nil {
		return n, eris.Wrapf(err, "cannot decode event: %s", p)
	}

	w.buffer.Reset()
	w.buffer.WriteString(levelColor(evt["level"]))

	if task, ok := evt["task"].(string); ok {
		w.buffer.WriteString(task + ": ")
	}

	if evt["level"] == "error" || evt["level"] == "fatal" {
		w.buffer.WriteString("Error: ")
	}

	if isCommand, ok := evt["command"].(bool); ok && isCommand {
		w.buffer.WriteString("$ ")
	}

	if msg, ok := evt["message"].(string); ok {
		w.buffer.WriteString(msg)
	}

	if errorDetails, ok := evt["error"].(string); ok {
		w.buffer.WriteString("\n")
		w.buffer.WriteString(errorDetails)
	}

	if os.Getenv(debugEnv) != "" {
		names := make([]string, 0, len(evt))
		for name := range evt {
			names = append(names, name)
		}
		sort.Strings(names)

		w.buffer.WriteString("\n")
		for _, name := range names {
			w.buffer.WriteString(fmt.Sprintf("  %s: %+v\n", name, evt[name]))
		}
	}

	w.buffer.WriteString("[reset]\n")
	return colorstring.Fprint(os.Stderr, w.buffer.String())
}

func init() {
	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		return eris.ToString(err, os.Getenv(debugEnv) != "")
	}
}
