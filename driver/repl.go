package driver

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	prompt "github.com/joeycumines/go-prompt"
	pstrings "github.com/joeycumines/go-prompt/strings"
	"github.com/rs/zerolog/log"

	"github.com/sarchlab/mesisim/bus"
)

// replCommands backs the completer's suggestion list.
var replCommands = []prompt.Suggest{
	{Text: "help", Description: "print commands and status"},
	{Text: "mem", Description: "print materialized memory blocks"},
	{Text: "memory", Description: "print materialized memory blocks"},
	{Text: "exit", Description: "terminate the REPL"},
}

func replCompleter(doc prompt.Document) ([]prompt.Suggest, pstrings.RuneNumber, pstrings.RuneNumber) {
	endIndex := doc.CurrentRuneIndex()
	w := doc.GetWordBeforeCursor()
	startIndex := endIndex - pstrings.RuneCountInString(w)
	return prompt.FilterHasPrefix(replCommands, w, true), startIndex, endIndex
}

// RunREPL drives an interactive prompt.Input loop over d, writing all
// output to w, until the user types "exit"/"quit", every core
// finishes and the user accepts an empty line, or a step raises a
// *bus.InvariantViolationError, which RunREPL reports and returns.
func RunREPL(d *Driver, w io.Writer) error {
	fmt.Fprintln(w, "mesisim REPL. Empty line steps the clock; type 'help' for commands.")

	for {
		line := prompt.Input(
			prompt.WithPrefix("mesisim> "),
			prompt.WithCompleter(replCompleter),
		)

		exit, err := HandleLine(d, w, line)
		if err != nil {
			return err
		}
		if exit {
			return nil
		}
	}
}

// HandleLine dispatches a single REPL input line. Unrecognized input
// and recoverable errors are reported to w, not treated as fatal
// (matching the forgiving, keep-going REPL style of the original
// tool). It returns exit=true when the REPL should terminate
// normally, and a non-nil error only for a
// *bus.InvariantViolationError, which is fatal and must propagate to
// the caller's exit code. Exported so it can be driven directly by
// tests or by a scripted, non-interactive caller.
func HandleLine(d *Driver, w io.Writer, line string) (exit bool, err error) {
	trimmed := strings.TrimSpace(line)

	if trimmed == "exit" || trimmed == "quit" {
		log.Info().Msg("repl exit requested")
		fmt.Fprintln(w, "bye.")
		return true, nil
	}

	if d.Finished() && trimmed == "" {
		fmt.Fprintln(w, "all cores finished.")
		return true, nil
	}

	cmdErr := dispatchCommand(d, w, trimmed)
	if cmdErr == nil {
		return false, nil
	}

	if errors.Is(cmdErr, errUnknownCommand) {
		fmt.Fprintf(w, "unknown command: %q (type 'help')\n", line)
		return false, nil
	}

	var iv *bus.InvariantViolationError
	if errors.As(cmdErr, &iv) {
		fmt.Fprintf(w, "fatal: %v\n", cmdErr)
		return true, cmdErr
	}

	fmt.Fprintf(w, "error: %v\n", cmdErr)
	return false, nil
}

func dispatchCommand(d *Driver, w io.Writer, trimmed string) error {
	switch {
	case trimmed == "":
		if err := d.Step(); err != nil {
			return err
		}
		fmt.Fprintf(w, "step %d complete.\n", d.Steps())
		return nil

	case trimmed == "mem" || trimmed == "memory":
		d.PrintMemory(w)
		return nil

	case trimmed == "help":
		printHelp(d, w)
		return nil

	case strings.HasPrefix(trimmed, "cache"):
		return dispatchCacheCommand(d, w, strings.TrimPrefix(trimmed, "cache"))

	case strings.HasPrefix(trimmed, "c"):
		return dispatchCacheCommand(d, w, strings.TrimPrefix(trimmed, "c"))

	default:
		return errUnknownCommand
	}
}

func dispatchCacheCommand(d *Driver, w io.Writer, indexText string) error {
	i, err := strconv.Atoi(strings.TrimSpace(indexText))
	if err != nil {
		return errUnknownCommand
	}
	return d.PrintCache(i, w)
}

func printHelp(d *Driver, w io.Writer) {
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  <empty line>   advance one step (every core ticks once)")
	fmt.Fprintln(w, "  c<i>, cache<i> print cache i's lines")
	fmt.Fprintln(w, "  mem, memory    print materialized memory blocks")
	fmt.Fprintln(w, "  help           print this message")
	fmt.Fprintln(w, "  exit, quit     terminate")
	fmt.Fprintf(w, "steps so far: %d, finished: %t\n", d.Steps(), d.Finished())
}
