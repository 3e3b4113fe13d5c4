package viceprotocol

import (
	"encoding/binary"
	"fmt"
)

// Command is one binary monitor request ready to be stamped with a
// request ID and written to the socket. Use the constructor functions
// (NewMemGetCommand, NewStepCommand, etc.) to create Command instances.
type Command struct {
	Type CommandType
	Body []byte
}

// Encode returns the full wire frame for the command.
func (c Command) Encode(requestID uint32) []byte {
	frame := make([]byte, RequestHeaderSize+len(c.Body))
	frame[0] = STX
	frame[1] = APIVersion
	binary.LittleEndian.PutUint32(frame[2:], uint32(len(c.Body)))
	binary.LittleEndian.PutUint32(frame[6:], requestID)
	frame[10] = byte(c.Type)
	copy(frame[RequestHeaderSize:], c.Body)
	return frame
}

// RequestHeader is the decoded header of a request frame.
type RequestHeader struct {
	BodyLength uint32
	RequestID  uint32
	Type       CommandType
}

// DecodeRequest splits the first request frame off b. It reports false if
// b does not yet hold a complete frame. Emulator-side tooling and tests
// use it to read what the client sent.
func DecodeRequest(b []byte) (hdr RequestHeader, body []byte, n int, ok bool) {
	if len(b) < RequestHeaderSize || b[0] != STX {
		return RequestHeader{}, nil, 0, false
	}
	hdr = RequestHeader{
		BodyLength: binary.LittleEndian.Uint32(b[2:]),
		RequestID:  binary.LittleEndian.Uint32(b[6:]),
		Type:       CommandType(b[10]),
	}
	n = RequestHeaderSize + int(hdr.BodyLength)
	if len(b) < n {
		return RequestHeader{}, nil, 0, false
	}
	return hdr, b[RequestHeaderSize:n], n, true
}

// Command constructors - these provide a clean API for creating commands.

func headerOnly(t CommandType) Command {
	return Command{Type: t}
}

// NewMemGetCommand reads memory from start to end inclusive.
func NewMemGetCommand(start, end uint16, space MemSpace, bank uint16, sideEffects bool) Command {
	body := newEncoder(8).
		flag(sideEffects).
		u16(start).
		u16(end).
		u8(uint8(space)).
		u16(bank)
	return Command{Type: CmdMemGet, Body: body.bytes()}
}

// NewMemSetCommand writes data starting at start. An empty data slice
// yields a command that writes nothing.
func NewMemSetCommand(start uint16, data []byte, space MemSpace, bank uint16, sideEffects bool) Command {
	end := start
	if len(data) > 0 {
		end = start + uint16(len(data)-1)
	}
	body := newEncoder(8 + len(data)).
		flag(sideEffects).
		u16(start).
		u16(end).
		u8(uint8(space)).
		u16(bank).
		raw(data)
	return Command{Type: CmdMemSet, Body: body.bytes()}
}

// NewCheckpointGetCommand asks for the state of one checkpoint.
func NewCheckpointGetCommand(number uint32) Command {
	return Command{Type: CmdCheckpointGet, Body: newEncoder(4).u32(number).bytes()}
}

// CheckpointSpec describes a checkpoint to create.
type CheckpointSpec struct {
	Start, End uint16
	Stop       bool
	Enabled    bool
	Operations CPUOperation
	Temporary  bool
}

// Flags returns the local flag word a checkpoint built from s will carry.
func (s CheckpointSpec) Flags() CheckpointFlags {
	var f CheckpointFlags
	if s.Enabled {
		f |= FlagEnabled
	}
	if s.Stop {
		f |= FlagStop
	}
	if s.Operations&OpExec != 0 {
		f |= FlagExec
	}
	if s.Operations&OpLoad != 0 {
		f |= FlagLoad
	}
	if s.Operations&OpStore != 0 {
		f |= FlagStore
	}
	if s.Temporary {
		f |= FlagTemporary
	}
	return f
}

// NewCheckpointSetCommand creates a checkpoint.
func NewCheckpointSetCommand(spec CheckpointSpec) Command {
	body := newEncoder(8).
		u16(spec.Start).
		u16(spec.End).
		flag(spec.Stop).
		flag(spec.Enabled).
		u8(uint8(spec.Operations)).
		flag(spec.Temporary)
	return Command{Type: CmdCheckpointSet, Body: body.bytes()}
}

// NewCheckpointDeleteCommand deletes a checkpoint.
func NewCheckpointDeleteCommand(number uint32) Command {
	return Command{Type: CmdCheckpointDelete, Body: newEncoder(4).u32(number).bytes()}
}

// NewCheckpointListCommand asks for every checkpoint. The emulator answers
// with one CheckpointGet reply per checkpoint followed by a CheckpointList
// reply carrying the count.
func NewCheckpointListCommand() Command {
	return headerOnly(CmdCheckpointList)
}

// NewCheckpointToggleCommand enables or disables a checkpoint.
func NewCheckpointToggleCommand(number uint32, enabled bool) Command {
	return Command{Type: CmdCheckpointToggle, Body: newEncoder(5).u32(number).flag(enabled).bytes()}
}

// NewConditionSetCommand attaches a condition expression to a checkpoint.
func NewConditionSetCommand(number uint32, expr string) (Command, error) {
	if len(expr) > maxStringLength {
		return Command{}, fmt.Errorf("condition: %w", ErrStringTooLong)
	}
	body := newEncoder(5 + len(expr)).u32(number).str(expr)
	return Command{Type: CmdConditionSet, Body: body.bytes()}, nil
}

// NewRegistersGetCommand asks for all registers of a memory space.
func NewRegistersGetCommand(space MemSpace) Command {
	return Command{Type: CmdRegistersGet, Body: []byte{byte(space)}}
}

// NewRegistersSetCommand writes the registers selected by mask. Each entry
// is encoded as item size (3), register ID and a 16-bit value.
func NewRegistersSetCommand(space MemSpace, regs Registers, mask RegisterMask) Command {
	var count uint16
	items := newEncoder(4 * len(maskOrder))
	for _, m := range maskOrder {
		if mask&m.mask == 0 {
			continue
		}
		value, _ := regs.Get(m.id)
		items.u8(3).u8(uint8(m.id)).u16(value)
		count++
	}
	body := newEncoder(3 + len(items.bytes())).
		u8(uint8(space)).
		u16(count).
		raw(items.bytes())
	return Command{Type: CmdRegistersSet, Body: body.bytes()}
}

// NewDumpCommand saves a snapshot to filename on the emulator host.
func NewDumpCommand(filename string, saveROMs, saveDisks bool) (Command, error) {
	if len(filename) > maxStringLength {
		return Command{}, fmt.Errorf("dump filename: %w", ErrStringTooLong)
	}
	body := newEncoder(3 + len(filename)).flag(saveROMs).flag(saveDisks).str(filename)
	return Command{Type: CmdDump, Body: body.bytes()}, nil
}

// NewUndumpCommand loads a snapshot from filename on the emulator host.
func NewUndumpCommand(filename string) (Command, error) {
	if len(filename) > maxStringLength {
		return Command{}, fmt.Errorf("undump filename: %w", ErrStringTooLong)
	}
	return Command{Type: CmdUndump, Body: newEncoder(1 + len(filename)).str(filename).bytes()}, nil
}

// NewResourceGetCommand reads an emulator resource by name.
func NewResourceGetCommand(name string) (Command, error) {
	if len(name) > maxStringLength {
		return Command{}, fmt.Errorf("resource name: %w", ErrStringTooLong)
	}
	return Command{Type: CmdResourceGet, Body: newEncoder(1 + len(name)).str(name).bytes()}, nil
}

// ResourceType is the type byte of a resource value.
type ResourceType uint8

const (
	ResourceString ResourceType = 0x00
	ResourceInt    ResourceType = 0x01
)

// ResourceValue is a string or integer emulator resource.
type ResourceValue struct {
	Type   ResourceType
	String string
	Int    int32
}

// NewResourceSetCommand writes an emulator resource. Integer values are
// sent as four little-endian bytes.
func NewResourceSetCommand(name string, value ResourceValue) (Command, error) {
	if len(name) > maxStringLength || len(value.String) > maxStringLength {
		return Command{}, fmt.Errorf("resource %q: %w", name, ErrStringTooLong)
	}
	body := newEncoder(8 + len(name) + len(value.String)).u8(uint8(value.Type)).str(name)
	switch value.Type {
	case ResourceInt:
		body.u8(4).u32(uint32(value.Int))
	default:
		body.str(value.String)
	}
	return Command{Type: CmdResourceSet, Body: body.bytes()}, nil
}

// NewStepCommand executes count instructions. With stepOver, subroutine
// calls count as a single instruction.
func NewStepCommand(stepOver bool, count uint16) Command {
	if count == 0 {
		count = 1
	}
	return Command{Type: CmdStep, Body: newEncoder(3).flag(stepOver).u16(count).bytes()}
}

// NewKeyboardFeedCommand types text into the emulated keyboard buffer.
func NewKeyboardFeedCommand(text string) (Command, error) {
	if len(text) > maxStringLength {
		return Command{}, fmt.Errorf("keyboard text: %w", ErrStringTooLong)
	}
	return Command{Type: CmdKeyboardFeed, Body: newEncoder(1 + len(text)).str(text).bytes()}, nil
}

// NewStepOutCommand runs until the current subroutine returns.
func NewStepOutCommand() Command {
	return headerOnly(CmdStepOut)
}

// NewPingCommand creates a ping command.
func NewPingCommand() Command {
	return headerOnly(CmdPing)
}

// NewBanksAvailableCommand asks for the memory bank names.
func NewBanksAvailableCommand() Command {
	return headerOnly(CmdBanksAvailable)
}

// NewRegistersAvailableCommand asks for the register descriptors of a
// memory space.
func NewRegistersAvailableCommand(space MemSpace) Command {
	return Command{Type: CmdRegistersAvailable, Body: []byte{byte(space)}}
}

// NewDisplayGetCommand captures the current display.
func NewDisplayGetCommand(useVICII bool, format DisplayFormat) Command {
	return Command{Type: CmdDisplayGet, Body: newEncoder(2).flag(useVICII).u8(uint8(format)).bytes()}
}

// NewExitCommand leaves the monitor and resumes execution.
func NewExitCommand() Command {
	return headerOnly(CmdExit)
}

// NewQuitCommand quits the emulator.
func NewQuitCommand() Command {
	return headerOnly(CmdQuit)
}

// NewResetCommand resets the machine or a drive.
func NewResetCommand(t ResetType) Command {
	return Command{Type: CmdReset, Body: []byte{byte(t)}}
}

// NewAutoStartCommand loads filename on the emulator host and, with run,
// starts it. fileIndex selects a file inside a disk image (0 = first).
func NewAutoStartCommand(filename string, run bool, fileIndex uint16) (Command, error) {
	if len(filename) > maxStringLength {
		return Command{}, fmt.Errorf("autostart filename: %w", ErrStringTooLong)
	}
	body := newEncoder(4 + len(filename)).flag(run).u16(fileIndex).str(filename)
	return Command{Type: CmdAutoStart, Body: body.bytes()}, nil
}
