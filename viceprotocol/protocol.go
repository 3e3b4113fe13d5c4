package viceprotocol

import (
	"fmt"
	"time"
)

// Wire constants.
const (
	// STX marks the first byte of every request and response frame.
	STX byte = 0x02

	// APIVersion is the binary monitor API version this client speaks.
	APIVersion byte = 0x02

	// RequestHeaderSize is the number of bytes before a request body.
	RequestHeaderSize = 11

	// ResponseHeaderSize is the number of bytes before a response body.
	ResponseHeaderSize = 12

	// EventRequestID is carried by unsolicited frames. It is never matched
	// against pending requests and never issued by the client.
	EventRequestID uint32 = 0xFFFFFFFF

	// firstRequestID is the first ID handed out by a new Client.
	firstRequestID uint32 = 0x1000

	// maxStringLength is the largest length a one-byte length prefix can carry.
	maxStringLength = 0xFF
)

// Default tuning values, overridable through Options.
const (
	// DefaultHeartbeatThreshold is the number of Tick calls a pending request
	// may stay unanswered before a Ping is sent.
	DefaultHeartbeatThreshold = 100

	// DefaultReadTimeout bounds each blocking socket read in the receive pump.
	DefaultReadTimeout = 100 * time.Millisecond

	// DefaultPollBackoff is the pause after a read that timed out with no data.
	DefaultPollBackoff = 50 * time.Millisecond

	// DefaultConnectTimeout bounds address resolution plus TCP connect.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultReceiveBufferSize is the receive buffer capacity. Unconsumed
	// bytes may never exceed three quarters of it.
	DefaultReceiveBufferSize = 10 * 1024 * 1024

	// DefaultPort is the port VICE listens on with -binarymonitor.
	DefaultPort = 6502
)

// CommandType identifies a request or response on the wire.
type CommandType uint8

// Command and response types.
const (
	CmdMemGet             CommandType = 0x01
	CmdMemSet             CommandType = 0x02
	CmdCheckpointGet      CommandType = 0x11
	CmdCheckpointSet      CommandType = 0x12
	CmdCheckpointDelete   CommandType = 0x13
	CmdCheckpointList     CommandType = 0x14
	CmdCheckpointToggle   CommandType = 0x15
	CmdConditionSet       CommandType = 0x22
	CmdRegistersGet       CommandType = 0x31
	CmdRegistersSet       CommandType = 0x32
	CmdDump               CommandType = 0x41
	CmdUndump             CommandType = 0x42
	CmdResourceGet        CommandType = 0x51
	CmdResourceSet        CommandType = 0x52
	CmdJam                CommandType = 0x61
	CmdStopped            CommandType = 0x62
	CmdResumed            CommandType = 0x63
	CmdStep               CommandType = 0x71
	CmdKeyboardFeed       CommandType = 0x72
	CmdStepOut            CommandType = 0x73
	CmdPing               CommandType = 0x81
	CmdBanksAvailable     CommandType = 0x82
	CmdRegistersAvailable CommandType = 0x83
	CmdDisplayGet         CommandType = 0x84
	CmdExit               CommandType = 0xAA
	CmdQuit               CommandType = 0xBB
	CmdReset              CommandType = 0xCC
	CmdAutoStart          CommandType = 0xDD
)

var commandNames = map[CommandType]string{
	CmdMemGet:             "MemGet",
	CmdMemSet:             "MemSet",
	CmdCheckpointGet:      "CheckpointGet",
	CmdCheckpointSet:      "CheckpointSet",
	CmdCheckpointDelete:   "CheckpointDelete",
	CmdCheckpointList:     "CheckpointList",
	CmdCheckpointToggle:   "CheckpointToggle",
	CmdConditionSet:       "ConditionSet",
	CmdRegistersGet:       "RegistersGet",
	CmdRegistersSet:       "RegistersSet",
	CmdDump:               "Dump",
	CmdUndump:             "Undump",
	CmdResourceGet:        "ResourceGet",
	CmdResourceSet:        "ResourceSet",
	CmdJam:                "Jam",
	CmdStopped:            "Stopped",
	CmdResumed:            "Resumed",
	CmdStep:               "Step",
	CmdKeyboardFeed:       "KeyboardFeed",
	CmdStepOut:            "StepOut",
	CmdPing:               "Ping",
	CmdBanksAvailable:     "BanksAvailable",
	CmdRegistersAvailable: "RegistersAvailable",
	CmdDisplayGet:         "DisplayGet",
	CmdExit:               "Exit",
	CmdQuit:               "Quit",
	CmdReset:              "Reset",
	CmdAutoStart:          "AutoStart",
}

// String returns the protocol name of the command, or "?" if unknown.
func (c CommandType) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "?"
}

// ErrorCode is the error byte of a response header.
type ErrorCode uint8

// Error codes defined by the binary monitor.
const (
	ErrCodeOK                 ErrorCode = 0x00
	ErrCodeObjectMissing      ErrorCode = 0x01
	ErrCodeInvalidMemSpace    ErrorCode = 0x02
	ErrCodeInvalidLength      ErrorCode = 0x80
	ErrCodeInvalidParameter   ErrorCode = 0x81
	ErrCodeUnsupportedVersion ErrorCode = 0x82
	ErrCodeInvalidCommand     ErrorCode = 0x83
	ErrCodeGeneralFailure     ErrorCode = 0x8F
)

func (e ErrorCode) String() string {
	switch e {
	case ErrCodeOK:
		return "ok"
	case ErrCodeObjectMissing:
		return "object does not exist"
	case ErrCodeInvalidMemSpace:
		return "invalid memory space"
	case ErrCodeInvalidLength:
		return "incorrect command length"
	case ErrCodeInvalidParameter:
		return "invalid parameter value"
	case ErrCodeUnsupportedVersion:
		return "unsupported API version"
	case ErrCodeInvalidCommand:
		return "invalid command type"
	case ErrCodeGeneralFailure:
		return "general failure"
	default:
		return fmt.Sprintf("error $%02X", uint8(e))
	}
}

// MemSpace selects which CPU's address space a command targets.
type MemSpace uint8

const (
	MemMain MemSpace = iota
	MemDrive8
	MemDrive9
	MemDrive10
	MemDrive11
)

func (m MemSpace) String() string {
	switch m {
	case MemMain:
		return "main"
	case MemDrive8, MemDrive9, MemDrive10, MemDrive11:
		return fmt.Sprintf("drive%d", int(m)+7)
	default:
		return fmt.Sprintf("space%d", int(m))
	}
}

// CPUOperation is the access mask of a checkpoint on the wire.
type CPUOperation uint8

const (
	OpLoad  CPUOperation = 0x01
	OpStore CPUOperation = 0x02
	OpExec  CPUOperation = 0x04
)

// RegisterID identifies a 6502/6510 register on the wire.
type RegisterID uint8

const (
	RegA     RegisterID = 0x00
	RegX     RegisterID = 0x01
	RegY     RegisterID = 0x02
	RegPC    RegisterID = 0x03
	RegSP    RegisterID = 0x04
	RegFlags RegisterID = 0x05
	RegLine  RegisterID = 0x35
	RegCycle RegisterID = 0x36
	RegZero  RegisterID = 0x37
	RegOne   RegisterID = 0x38
)

// ResetType selects what a Reset command resets.
type ResetType uint8

const (
	ResetSoft    ResetType = 0x00
	ResetHard    ResetType = 0x01
	ResetDrive8  ResetType = 0x08
	ResetDrive9  ResetType = 0x09
	ResetDrive10 ResetType = 0x0A
	ResetDrive11 ResetType = 0x0B
)

// DisplayFormat selects the pixel format of a DisplayGet reply.
type DisplayFormat uint8

// DisplayIndexed8 requests one palette index per pixel.
const DisplayIndexed8 DisplayFormat = 0x00
