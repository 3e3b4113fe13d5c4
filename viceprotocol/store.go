package viceprotocol

import (
	"log/slog"
	"strings"
)

// Registers holds the 6510 register file as the monitor reports it.
type Registers struct {
	A, X, Y uint8
	SP      uint8
	Flags   uint8
	PC      uint16
	Zero    uint8 // $00, the on-chip port direction register
	One     uint8 // $01, the on-chip port
	Line    uint16
	Cycle   uint16
}

// Get returns the value of a register by wire ID.
func (r Registers) Get(id RegisterID) (uint16, bool) {
	switch id {
	case RegA:
		return uint16(r.A), true
	case RegX:
		return uint16(r.X), true
	case RegY:
		return uint16(r.Y), true
	case RegPC:
		return r.PC, true
	case RegSP:
		return uint16(r.SP), true
	case RegFlags:
		return uint16(r.Flags), true
	case RegLine:
		return r.Line, true
	case RegCycle:
		return r.Cycle, true
	case RegZero:
		return uint16(r.Zero), true
	case RegOne:
		return uint16(r.One), true
	}
	return 0, false
}

// Set stores value into the register with the given wire ID. Unknown IDs
// are ignored and reported as false.
func (r *Registers) Set(id RegisterID, value uint16) bool {
	switch id {
	case RegA:
		r.A = uint8(value)
	case RegX:
		r.X = uint8(value)
	case RegY:
		r.Y = uint8(value)
	case RegPC:
		r.PC = value
	case RegSP:
		r.SP = uint8(value)
	case RegFlags:
		r.Flags = uint8(value)
	case RegLine:
		r.Line = value
	case RegCycle:
		r.Cycle = value
	case RegZero:
		r.Zero = uint8(value)
	case RegOne:
		r.One = uint8(value)
	default:
		return false
	}
	return true
}

// RegisterMask selects registers for SetRegisters.
type RegisterMask uint32

const (
	MaskA RegisterMask = 1 << iota
	MaskX
	MaskY
	MaskSP
	MaskFlags
	MaskZero
	MaskOne
	MaskPC

	MaskAll = MaskA | MaskX | MaskY | MaskSP | MaskFlags | MaskZero | MaskOne | MaskPC
)

// maskOrder lists the writable registers in the order they are encoded.
var maskOrder = []struct {
	mask RegisterMask
	id   RegisterID
}{
	{MaskA, RegA},
	{MaskX, RegX},
	{MaskY, RegY},
	{MaskSP, RegSP},
	{MaskFlags, RegFlags},
	{MaskZero, RegZero},
	{MaskOne, RegOne},
	{MaskPC, RegPC},
}

// CheckpointFlags is the local representation of a checkpoint's state,
// rebuilt from the discrete wire fields of every checkpoint reply.
type CheckpointFlags uint32

const (
	FlagEnabled CheckpointFlags = 1 << iota
	FlagStop
	FlagExec
	FlagLoad
	FlagStore
	FlagCurrent
	FlagTemporary
)

// String renders the flags as a compact column, e.g. "ES-X--T".
func (f CheckpointFlags) String() string {
	var b strings.Builder
	for _, c := range []struct {
		flag CheckpointFlags
		ch   byte
	}{
		{FlagEnabled, 'E'},
		{FlagStop, 'S'},
		{FlagLoad, 'L'},
		{FlagStore, 'W'},
		{FlagExec, 'X'},
		{FlagCurrent, '*'},
		{FlagTemporary, 'T'},
	} {
		if f&c.flag != 0 {
			b.WriteByte(c.ch)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Operations returns the wire access mask encoded in the flags.
func (f CheckpointFlags) Operations() CPUOperation {
	var op CPUOperation
	if f&FlagLoad != 0 {
		op |= OpLoad
	}
	if f&FlagStore != 0 {
		op |= OpStore
	}
	if f&FlagExec != 0 {
		op |= OpExec
	}
	return op
}

// Checkpoint is a breakpoint or watchpoint as pushed into a BreakpointStore.
type Checkpoint struct {
	Number       uint32
	Start, End   uint16
	Flags        CheckpointFlags
	HasCondition bool
	HitCount     uint32
	IgnoreCount  uint32
	Space        MemSpace
}

// CPUStore is the local mirror of emulator memory and registers that the
// client keeps up to date.
type CPUStore interface {
	GetByte(space MemSpace, addr uint16) byte
	SetByte(space MemSpace, addr uint16, value byte)
	Registers(space MemSpace) Registers
	SetRegister(space MemSpace, id RegisterID, value uint16)
}

// BreakpointStore receives checkpoint state. The protocol has no
// incremental updates, so the client clears the store before every
// checkpoint list refresh.
type BreakpointStore interface {
	AddBreakpoint(cp Checkpoint)
	ClearBreakpoints()
	SetBreakpointHit(number uint32)
	ClearBreakpointsHit()
}

// DisplayFrame is a captured emulator display.
type DisplayFrame struct {
	// Image holds Width*Height pixels at BitsPerPixel (8: palette indices).
	Image        []byte
	Width        uint16
	Height       uint16
	BitsPerPixel uint8

	// Visible screen area within Image.
	Left, Top    uint16
	ScreenWidth  uint16
	ScreenHeight uint16
}

// ScreenSink receives display captures.
type ScreenSink interface {
	RefreshScreen(frame DisplayFrame)
}

// LogSink receives human-readable protocol log lines.
type LogSink interface {
	Log(line string)
}

// LogSinkFunc adapts a function to LogSink.
type LogSinkFunc func(line string)

// Log calls f(line).
func (f LogSinkFunc) Log(line string) { f(line) }

// SlogSink returns a LogSink that writes each line to logger at Info.
func SlogSink(logger *slog.Logger) LogSink {
	return LogSinkFunc(func(line string) {
		logger.Info(line)
	})
}
