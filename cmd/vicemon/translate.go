// =============================================================================
// translate.go - Command Translation (User Input → Client Calls)
// =============================================================================
//
// Monitor commands typed at the prompt are translated into calls on the
// binary monitor client. The vocabulary follows the VICE text monitor
// where it can:
//
//   g $C000           → SetRegisters(PC=$C000), Go
//   m c000 c0ff       → GetMemory($C000, $C0FF), then a memory dump
//   watch d020 store  → AddCheckpoint(store watchpoint on $D020)
//
// Replies arrive asynchronously, so a translation also says what the
// REPL should show once the emulator has answered.
//
// Addresses and byte values are hexadecimal, with an optional "$" or "0x"
// prefix. Checkpoint numbers are decimal.
//
// =============================================================================

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/attic/vicemon/viceprotocol"
)

// errUnknownCommand reports input that is not a monitor command.
// GO CONCEPT: Sentinel Errors
// ----------------------------
// A package-level error value lets callers test for one specific failure:
//
//	err := fmt.Errorf("%w: %s", errUnknownCommand, name)
//	errors.Is(err, errUnknownCommand) // true
//
// The %w verb wraps the sentinel, so the message gains context while
// errors.Is still sees the original value inside.
var errUnknownCommand = errors.New("unknown command")

// defaultDumpLength is how many bytes "m addr" shows without an end.
const defaultDumpLength = 0x80

// GO CONCEPT: Implicit Interfaces
// -------------------------------
// *viceprotocol.Client never declares that it implements monitor. Any type
// with these methods satisfies the interface automatically, so tests pass
// a small recording fake instead of a live client. The interface is
// declared here, where it is consumed, and lists only what the
// translator calls.

// monitor is the part of the client the translator drives.
type monitor interface {
	Break() error
	Go() error
	Step() error
	StepOver() error
	StepOut() error
	RunTo(addr uint16) error

	AddBreakpoint(addr uint16) error
	AddCheckpoint(spec viceprotocol.CheckpointSpec) error
	RemoveBreakpoints(numbers ...uint32) error
	ToggleBreakpoint(number uint32, enable bool) error
	SetCondition(number uint32, expr string) error
	ListCheckpoints() error

	GetMemory(start, end uint16, space viceprotocol.MemSpace) error
	SetMemory(start uint16, data []byte, space viceprotocol.MemSpace) error
	GetRegisters(space viceprotocol.MemSpace) error
	SetRegisters(space viceprotocol.MemSpace, regs viceprotocol.Registers, mask viceprotocol.RegisterMask) error

	Reset(t viceprotocol.ResetType) error
	AutoStart(filename string) error
	KeyboardFeed(text string) error
	Dump(filename string, saveROMs, saveDisks bool) error
	Undump(filename string) error
	GetResource(name string) error
	SetResource(name string, value viceprotocol.ResourceValue) error
}

// GO CONCEPT: iota
// ----------------
// Inside a const block iota counts from zero, one per line. Giving the
// first constant a named type makes the rest share it, which is Go's
// usual stand-in for an enumeration.

// viewKind says what the REPL shows after a command.
type viewKind int

const (
	viewNone viewKind = iota
	viewMemory
	viewRegisters
	viewCheckpoints
)

// result is the outcome of a translated command.
type result struct {
	view       viewKind
	start, end uint16
	space      viceprotocol.MemSpace
}

// translateMonitorCommand parses line and issues the matching client
// calls on m.
func translateMonitorCommand(m monitor, line string) (result, error) {
	trimmed := strings.TrimSpace(line)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return result{}, nil
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]
	rest := strings.TrimSpace(trimmed[len(fields[0]):])

	switch cmd {
	case "g", "go":
		if len(args) > 0 {
			addr, err := parseAddress(args[0])
			if err != nil {
				return result{}, err
			}
			regs := viceprotocol.Registers{PC: addr}
			if err := m.SetRegisters(viceprotocol.MemMain, regs, viceprotocol.MaskPC); err != nil {
				return result{}, err
			}
		}
		return result{}, m.Go()

	case "z", "s", "step":
		return result{}, m.Step()

	case "n", "next":
		return result{}, m.StepOver()

	case "ret", "return":
		return result{}, m.StepOut()

	case "x", "break":
		return result{}, m.Break()

	case "until":
		if len(args) != 1 {
			return result{}, usage("until <addr>")
		}
		addr, err := parseAddress(args[0])
		if err != nil {
			return result{}, err
		}
		return result{}, m.RunTo(addr)

	case "m", "mem":
		return translateMemoryDump(m, args)

	case ">":
		return translateMemoryWrite(m, args)

	case "r", "reg":
		return translateRegisters(m, args)

	case "bp":
		if len(args) < 1 || len(args) > 2 {
			return result{}, usage("bp <addr> [end]")
		}
		start, err := parseAddress(args[0])
		if err != nil {
			return result{}, err
		}
		if len(args) == 1 {
			return result{view: viewCheckpoints}, m.AddBreakpoint(start)
		}
		end, err := parseAddress(args[1])
		if err != nil {
			return result{}, err
		}
		return result{view: viewCheckpoints}, m.AddCheckpoint(viceprotocol.CheckpointSpec{
			Start: start, End: end, Stop: true, Enabled: true, Operations: viceprotocol.OpExec,
		})

	case "watch":
		return translateWatch(m, args)

	case "bd", "del":
		if len(args) == 0 {
			return result{}, usage("bd <n> [n...]")
		}
		numbers := make([]uint32, 0, len(args))
		for _, a := range args {
			n, err := parseCheckpointNumber(a)
			if err != nil {
				return result{}, err
			}
			numbers = append(numbers, n)
		}
		return result{view: viewCheckpoints}, m.RemoveBreakpoints(numbers...)

	case "be", "enable", "bdis", "disable":
		if len(args) != 1 {
			return result{}, usage(cmd + " <n>")
		}
		n, err := parseCheckpointNumber(args[0])
		if err != nil {
			return result{}, err
		}
		enable := cmd == "be" || cmd == "enable"
		return result{view: viewCheckpoints}, m.ToggleBreakpoint(n, enable)

	case "cond", "if":
		if len(args) < 2 {
			return result{}, usage("cond <n> <expr>")
		}
		n, err := parseCheckpointNumber(args[0])
		if err != nil {
			return result{}, err
		}
		expr := strings.TrimSpace(rest[len(args[0]):])
		return result{view: viewCheckpoints}, m.SetCondition(n, expr)

	case "bl":
		return result{view: viewCheckpoints}, m.ListCheckpoints()

	case "reset":
		t := viceprotocol.ResetSoft
		if len(args) > 0 {
			var err error
			if t, err = parseResetType(args[0]); err != nil {
				return result{}, err
			}
		}
		return result{}, m.Reset(t)

	case "load", "autostart":
		if rest == "" {
			return result{}, usage("load <file>")
		}
		return result{}, m.AutoStart(rest)

	case "keys", "type":
		if rest == "" {
			return result{}, usage("keys <text>")
		}
		// The keyboard buffer wants RETURN, not newline.
		return result{}, m.KeyboardFeed(strings.ReplaceAll(rest, `\n`, "\r"))

	case "dump":
		if rest == "" {
			return result{}, usage("dump <file>")
		}
		return result{}, m.Dump(rest, false, true)

	case "undump":
		if rest == "" {
			return result{}, usage("undump <file>")
		}
		return result{}, m.Undump(rest)

	case "resource":
		if len(args) == 0 {
			return result{}, usage("resource <name> [value]")
		}
		if len(args) == 1 {
			return result{}, m.GetResource(args[0])
		}
		return result{}, m.SetResource(args[0], parseResourceValue(strings.TrimSpace(rest[len(args[0]):])))
	}

	return result{}, fmt.Errorf("%w: %s", errUnknownCommand, fields[0])
}

// translateMemoryDump handles "m <start> [end]".
func translateMemoryDump(m monitor, args []string) (result, error) {
	if len(args) < 1 || len(args) > 2 {
		return result{}, usage("m <start> [end]")
	}
	start, err := parseAddress(args[0])
	if err != nil {
		return result{}, err
	}
	end := uint16(min(int(start)+defaultDumpLength-1, 0xFFFF))
	if len(args) == 2 {
		if end, err = parseAddress(args[1]); err != nil {
			return result{}, err
		}
	}
	if end < start {
		start, end = end, start
	}
	res := result{view: viewMemory, start: start, end: end, space: viceprotocol.MemMain}
	return res, m.GetMemory(start, end, viceprotocol.MemMain)
}

// translateMemoryWrite handles "> <addr> <byte> [byte...]".
func translateMemoryWrite(m monitor, args []string) (result, error) {
	if len(args) < 2 {
		return result{}, usage("> <addr> <byte> [byte...]")
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return result{}, err
	}
	data := make([]byte, 0, len(args)-1)
	for _, a := range args[1:] {
		b, err := parseByte(a)
		if err != nil {
			return result{}, err
		}
		data = append(data, b)
	}
	if err := m.SetMemory(addr, data, viceprotocol.MemMain); err != nil {
		return result{}, err
	}
	end := uint16(min(int(addr)+len(data)-1, 0xFFFF))
	return result{view: viewMemory, start: addr, end: end, space: viceprotocol.MemMain},
		m.GetMemory(addr, end, viceprotocol.MemMain)
}

// registerNames maps register names accepted by "r" to their mask and ID.
var registerNames = map[string]struct {
	mask viceprotocol.RegisterMask
	id   viceprotocol.RegisterID
}{
	"a":  {viceprotocol.MaskA, viceprotocol.RegA},
	"x":  {viceprotocol.MaskX, viceprotocol.RegX},
	"y":  {viceprotocol.MaskY, viceprotocol.RegY},
	"sp": {viceprotocol.MaskSP, viceprotocol.RegSP},
	"fl": {viceprotocol.MaskFlags, viceprotocol.RegFlags},
	"p":  {viceprotocol.MaskFlags, viceprotocol.RegFlags},
	"pc": {viceprotocol.MaskPC, viceprotocol.RegPC},
	"00": {viceprotocol.MaskZero, viceprotocol.RegZero},
	"01": {viceprotocol.MaskOne, viceprotocol.RegOne},
}

// translateRegisters handles "r" and "r <reg>=<value>...".
func translateRegisters(m monitor, args []string) (result, error) {
	res := result{view: viewRegisters, space: viceprotocol.MemMain}
	if len(args) == 0 {
		return res, m.GetRegisters(viceprotocol.MemMain)
	}

	var regs viceprotocol.Registers
	var mask viceprotocol.RegisterMask
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		if !ok {
			return result{}, usage("r [reg=value...]")
		}
		reg, known := registerNames[strings.ToLower(name)]
		if !known {
			return result{}, fmt.Errorf("unknown register %q", name)
		}
		v, err := parseAddress(value)
		if err != nil {
			return result{}, err
		}
		if reg.id != viceprotocol.RegPC && v > 0xFF {
			return result{}, fmt.Errorf("value $%X does not fit register %s", v, strings.ToUpper(name))
		}
		regs.Set(reg.id, v)
		mask |= reg.mask
	}
	if err := m.SetRegisters(viceprotocol.MemMain, regs, mask); err != nil {
		return result{}, err
	}
	return res, m.GetRegisters(viceprotocol.MemMain)
}

// translateWatch handles "watch <start> [end] [load|store]".
func translateWatch(m monitor, args []string) (result, error) {
	if len(args) == 0 {
		return result{}, usage("watch <start> [end] [load|store]")
	}
	ops := viceprotocol.OpLoad | viceprotocol.OpStore
	if last := strings.ToLower(args[len(args)-1]); last == "load" || last == "store" {
		if last == "load" {
			ops = viceprotocol.OpLoad
		} else {
			ops = viceprotocol.OpStore
		}
		args = args[:len(args)-1]
	}
	if len(args) < 1 || len(args) > 2 {
		return result{}, usage("watch <start> [end] [load|store]")
	}
	start, err := parseAddress(args[0])
	if err != nil {
		return result{}, err
	}
	end := start
	if len(args) == 2 {
		if end, err = parseAddress(args[1]); err != nil {
			return result{}, err
		}
	}
	return result{view: viewCheckpoints}, m.AddCheckpoint(viceprotocol.CheckpointSpec{
		Start:      start,
		End:        end,
		Stop:       true,
		Enabled:    true,
		Operations: ops,
	})
}

// parseAddress parses a 16-bit hexadecimal value: "C000", "$C000" or
// "0xC000".
func parseAddress(s string) (uint16, error) {
	digits := strings.TrimPrefix(s, "$")
	if len(digits) > 2 && (digits[:2] == "0x" || digits[:2] == "0X") {
		digits = digits[2:]
	}
	v, err := strconv.ParseUint(digits, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint16(v), nil
}

// parseByte parses an 8-bit hexadecimal value.
func parseByte(s string) (byte, error) {
	v, err := parseAddress(s)
	if err != nil || v > 0xFF {
		return 0, fmt.Errorf("invalid byte %q", s)
	}
	return byte(v), nil
}

func parseCheckpointNumber(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "#"), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid checkpoint number %q", s)
	}
	return uint32(n), nil
}

func parseResetType(s string) (viceprotocol.ResetType, error) {
	switch strings.ToLower(s) {
	case "soft", "0":
		return viceprotocol.ResetSoft, nil
	case "hard", "1":
		return viceprotocol.ResetHard, nil
	case "8":
		return viceprotocol.ResetDrive8, nil
	case "9":
		return viceprotocol.ResetDrive9, nil
	case "10":
		return viceprotocol.ResetDrive10, nil
	case "11":
		return viceprotocol.ResetDrive11, nil
	}
	return 0, fmt.Errorf("invalid reset type %q (soft, hard, 8-11)", s)
}

// parseResourceValue treats anything that parses as an integer as one;
// everything else is a string resource.
func parseResourceValue(s string) viceprotocol.ResourceValue {
	if n, err := strconv.ParseInt(s, 0, 32); err == nil {
		return viceprotocol.ResourceValue{Type: viceprotocol.ResourceInt, Int: int32(n)}
	}
	return viceprotocol.ResourceValue{Type: viceprotocol.ResourceString, String: strings.Trim(s, `"`)}
}

func usage(form string) error {
	return fmt.Errorf("usage: %s", form)
}
