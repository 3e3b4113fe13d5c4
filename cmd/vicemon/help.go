// =============================================================================
// help.go - Help System
// =============================================================================
//
//   - ".help"         Full command listing
//   - ".help <topic>" Detailed help for one command
//
// =============================================================================

package main

import (
	"fmt"
	"io"
	"strings"
)

// printHelp writes the command overview, or the detailed help for topic.
func printHelp(out io.Writer, topic string) error {
	if topic == "" {
		fmt.Fprint(out, helpOverview)
		return nil
	}

	// ".help .screenshot" and ".help screenshot" are the same.
	key := strings.TrimPrefix(strings.ToLower(topic), ".")

	if text, ok := globalHelp[key]; ok {
		fmt.Fprintln(out, text)
		return nil
	}
	if alias, ok := helpAliases[key]; ok {
		key = alias
	}
	if text, ok := monitorHelp[key]; ok {
		fmt.Fprintln(out, text)
		return nil
	}
	return fmt.Errorf("no help for '%s'. Type .help to see available commands", topic)
}

// GO CONCEPT: Raw String Literals
// -------------------------------
// Backquoted strings keep their newlines and backslashes exactly as
// written, which suits multi-line help text. They cannot contain a
// backquote.
const helpOverview = `Global Commands:
  .help [cmd]         Show help (or help for a specific command)
  .status             Show connection and CPU status
  .screenshot [path]  Capture the display to a PNG file
  .regnames           List the registers the emulator reports
  .banks              List the memory banks the emulator reports
  .connect [h[:p]]    Connect (again) to the emulator
  .disconnect         Close the monitor connection
  .quitvice           Quit the emulator and exit
  .quit               Exit (the emulator keeps running)

Execution:
  g [addr]            Go, optionally from addr
  z, s                Step one instruction
  n                   Step over subroutine calls
  ret                 Run until the current subroutine returns
  x, break            Stop a running emulator
  until <addr>        Run until addr is reached

Memory and registers:
  m <start> [end]     Memory dump
  > <addr> <bytes>    Write memory
  r [reg=val...]      Show or set registers

Checkpoints:
  bp <addr> [end]     Set a breakpoint
  watch <s> [e] [load|store]
                      Set a watchpoint
  bd <n> [n...]       Delete checkpoints
  be <n>, bdis <n>    Enable, disable a checkpoint
  cond <n> <expr>     Attach a condition
  bl                  List checkpoints

Machine:
  reset [soft|hard|8-11]
                      Reset the machine or a drive
  load <file>         Autostart a program
  keys <text>         Type into the keyboard buffer (\n for RETURN)
  dump <file>         Save a snapshot
  undump <file>       Load a snapshot
  resource <name> [value]
                      Read or write an emulator resource
`

var globalHelp = map[string]string{
	"help": `  .help [topic]
    Show the command overview, or detailed help for one command.`,

	"status": `  .status
    Show connection state, program counter, pending requests and the
    number of known checkpoints.`,

	"screenshot": `  .screenshot [path]
    Capture the visible display and save it as a PNG. The image is
    scaled by screenshot_scale from the config file.
    Default path: vicemon-<time>.png in the current directory.`,

	"regnames": `  .regnames
    Ask the emulator which registers the CPU has and list them.`,

	"banks": `  .banks
    Ask the emulator for its memory banks and list them.`,

	"connect": `  .connect [host[:port]]
    Connect to the emulator. Without an argument the configured host
    and port are used.`,

	"disconnect": `  .disconnect
    Close the monitor connection. The emulator keeps running.`,

	"quitvice": `  .quitvice
    Tell the emulator to quit, then exit.`,

	"quit": `  .quit
    Disconnect and exit. The emulator keeps running unless it was
    started with --launch.`,
}

// helpAliases maps alternative command names to their help entry.
var helpAliases = map[string]string{
	"go":        "g",
	"s":         "z",
	"step":      "z",
	"next":      "n",
	"return":    "ret",
	"break":     "x",
	"mem":       "m",
	"reg":       "r",
	"del":       "bd",
	"bdis":      "be",
	"enable":    "be",
	"disable":   "be",
	"if":        "cond",
	"autostart": "load",
	"type":      "keys",
}

var monitorHelp = map[string]string{
	"g": `  g [addr]
    Leave the monitor and resume execution. With an address, PC is set
    first.
    Examples:
      g             Resume from current PC
      g $C000       Set PC to $C000 and resume`,

	"z": `  z | s
    Execute one instruction. Only valid while stopped.`,

	"n": `  n
    Execute one instruction, treating JSR as a single instruction.`,

	"ret": `  ret
    Run until the current subroutine returns.`,

	"x": `  x | break
    Stop a running emulator and enter the monitor.`,

	"until": `  until <addr>
    Set a temporary breakpoint at addr and resume.
    Example:
      until $0810`,

	"m": `  m <start> [end]
    Read memory and dump it. Without an end, 128 bytes are shown.
    Examples:
      m c000        Dump $C000-$C07F
      m 0400 07e7   Dump screen memory`,

	">": `  > <addr> <byte> [byte...]
    Write bytes starting at addr.
    Example:
      > d020 00 00  Black border and background`,

	"r": `  r [reg=value...]
    Show the registers, or set some of them first.
    Registers: A X Y SP FL (or P) PC 00 01
    Example:
      r a=ff pc=c000`,

	"bp": `  bp <addr> [end]
    Set an execution breakpoint on one address or a range.`,

	"watch": `  watch <start> [end] [load|store]
    Stop when the range is read or written. Without load or store, both
    trigger.
    Example:
      watch d020 store`,

	"bd": `  bd <n> [n...]
    Delete checkpoints by number.`,

	"be": `  be <n> | bdis <n>
    Enable or disable a checkpoint.`,

	"cond": `  cond <n> <expr>
    Only stop at checkpoint n when expr holds.
    Example:
      cond 1 A == $FF`,

	"bl": `  bl
    List checkpoints. Flags: E enabled, S stops, L load, W store,
    X exec, * just hit, T temporary.`,

	"reset": `  reset [soft|hard|8|9|10|11]
    Reset the machine (soft by default) or a disk drive.`,

	"load": `  load <file>
    Autostart a program. The path is resolved on the emulator's host.`,

	"keys": `  keys <text>
    Type text into the keyboard buffer. Write \n for RETURN.
    Example:
      keys RUN\n`,

	"dump": `  dump <file>
    Save a snapshot including attached disks.`,

	"undump": `  undump <file>
    Load a snapshot.`,

	"resource": `  resource <name> [value]
    Read or write an emulator resource. Numeric values are written as
    integers.
    Example:
      resource WarpMode 1`,
}
