package viceprotocol

import (
	"encoding/binary"
	"fmt"
)

// Frame is one complete response: header plus body. Body aliases the
// receive buffer and is only valid during dispatch.
type Frame struct {
	Type      CommandType
	Error     ErrorCode
	RequestID uint32
	Body      []byte
}

// IsEvent reports whether the frame is unsolicited.
func (f Frame) IsEvent() bool {
	return f.RequestID == EventRequestID
}

// Err returns a *ProtocolError when the header carries an error code.
func (f Frame) Err() error {
	if f.Error == ErrCodeOK {
		return nil
	}
	return &ProtocolError{Command: f.Type, Code: f.Error, RequestID: f.RequestID}
}

// Fixed-offset accessors over a raw response header.

func headerMarker(b []byte) byte        { return b[0] }
func headerBodyLength(b []byte) uint32  { return binary.LittleEndian.Uint32(b[2:]) }
func headerType(b []byte) CommandType   { return CommandType(b[6]) }
func headerError(b []byte) ErrorCode    { return ErrorCode(b[7]) }
func headerRequestID(b []byte) uint32   { return binary.LittleEndian.Uint32(b[8:]) }
func headerFrameLength(b []byte) uint64 { return ResponseHeaderSize + uint64(headerBodyLength(b)) }

// EncodeResponse builds a response frame. The client never sends these;
// emulator stand-ins in tests and tools do.
func EncodeResponse(t CommandType, code ErrorCode, requestID uint32, body []byte) []byte {
	frame := make([]byte, ResponseHeaderSize+len(body))
	frame[0] = STX
	frame[1] = APIVersion
	binary.LittleEndian.PutUint32(frame[2:], uint32(len(body)))
	frame[6] = byte(t)
	frame[7] = byte(code)
	binary.LittleEndian.PutUint32(frame[8:], requestID)
	copy(frame[ResponseHeaderSize:], body)
	return frame
}

// RegisterValue is one entry of a RegistersGet reply.
type RegisterValue struct {
	ID    RegisterID
	Value uint16
}

// RegistersResponse is the body of a RegistersGet reply.
type RegistersResponse struct {
	Registers []RegisterValue
}

// DecodeRegisters decodes a RegistersGet reply. Entries are walked by
// their own item size so that wider future entries are skipped cleanly.
func DecodeRegisters(body []byte) (RegistersResponse, error) {
	d := newDecoder(CmdRegistersGet, body)
	count := int(d.u16())
	resp := RegistersResponse{Registers: make([]RegisterValue, 0, count)}
	for i := 0; i < count && d.err == nil; i++ {
		size := int(d.u8())
		next := d.off + size
		id := RegisterID(d.u8())
		value := d.u16()
		d.seek(next)
		if d.err == nil {
			resp.Registers = append(resp.Registers, RegisterValue{ID: id, Value: value})
		}
	}
	return resp, d.err
}

// EncodeRegisters builds a RegistersGet reply body.
func EncodeRegisters(values []RegisterValue) []byte {
	e := newEncoder(2 + 4*len(values)).u16(uint16(len(values)))
	for _, v := range values {
		e.u8(3).u8(uint8(v.ID)).u16(v.Value)
	}
	return e.bytes()
}

// RegisterDescriptor is one entry of a RegistersAvailable reply.
type RegisterDescriptor struct {
	ID   RegisterID
	Bits uint8
	Name string
}

// DecodeRegistersAvailable decodes a RegistersAvailable reply. Records
// are variable length: item size, ID, bit width, then a length-prefixed
// name. Each record is stepped over using its own name length.
func DecodeRegistersAvailable(body []byte) ([]RegisterDescriptor, error) {
	d := newDecoder(CmdRegistersAvailable, body)
	count := int(d.u16())
	regs := make([]RegisterDescriptor, 0, count)
	for i := 0; i < count && d.err == nil; i++ {
		d.u8() // item size
		desc := RegisterDescriptor{
			ID:   RegisterID(d.u8()),
			Bits: d.u8(),
		}
		desc.Name = d.str()
		if d.err == nil {
			regs = append(regs, desc)
		}
	}
	return regs, d.err
}

// EncodeRegistersAvailable builds a RegistersAvailable reply body.
func EncodeRegistersAvailable(regs []RegisterDescriptor) []byte {
	e := newEncoder(64).u16(uint16(len(regs)))
	for _, r := range regs {
		e.u8(uint8(3 + len(r.Name))).u8(uint8(r.ID)).u8(r.Bits).str(r.Name)
	}
	return e.bytes()
}

// BankDescriptor is one entry of a BanksAvailable reply.
type BankDescriptor struct {
	ID   uint16
	Name string
}

// DecodeBanksAvailable decodes a BanksAvailable reply.
func DecodeBanksAvailable(body []byte) ([]BankDescriptor, error) {
	d := newDecoder(CmdBanksAvailable, body)
	count := int(d.u16())
	banks := make([]BankDescriptor, 0, count)
	for i := 0; i < count && d.err == nil; i++ {
		d.u8() // item size
		bank := BankDescriptor{ID: d.u16()}
		bank.Name = d.str()
		if d.err == nil {
			banks = append(banks, bank)
		}
	}
	return banks, d.err
}

// DecodeMemGet returns the memory bytes of a MemGet reply.
func DecodeMemGet(body []byte) ([]byte, error) {
	d := newDecoder(CmdMemGet, body)
	n := int(d.u16())
	// A full 64K read reports a length of zero.
	if n == 0 && len(body)-2 == 0x10000 {
		n = 0x10000
	}
	data := d.raw(n)
	return data, d.err
}

// EncodeMemGet builds a MemGet reply body.
func EncodeMemGet(data []byte) []byte {
	return newEncoder(2 + len(data)).u16(uint16(len(data))).raw(data).bytes()
}

// CheckpointInfo is the body of a CheckpointGet reply, also sent for
// CheckpointSet and unsolicited on every hit while tracing.
type CheckpointInfo struct {
	Number       uint32
	Hit          bool
	Start, End   uint16
	Stop         bool
	Enabled      bool
	Operations   CPUOperation
	Temporary    bool
	HitCount     uint32
	IgnoreCount  uint32
	HasCondition bool
	Space        MemSpace
}

// Flags rebuilds the combined local flag word from the wire fields.
func (c CheckpointInfo) Flags() CheckpointFlags {
	var f CheckpointFlags
	if c.Enabled {
		f |= FlagEnabled
	}
	if c.Stop {
		f |= FlagStop
	}
	if c.Operations&OpExec != 0 {
		f |= FlagExec
	}
	if c.Operations&OpLoad != 0 {
		f |= FlagLoad
	}
	if c.Operations&OpStore != 0 {
		f |= FlagStore
	}
	if c.Hit {
		f |= FlagCurrent
	}
	if c.Temporary {
		f |= FlagTemporary
	}
	return f
}

// Checkpoint converts the reply into the store representation.
func (c CheckpointInfo) Checkpoint() Checkpoint {
	return Checkpoint{
		Number:       c.Number,
		Start:        c.Start,
		End:          c.End,
		Flags:        c.Flags(),
		HasCondition: c.HasCondition,
		HitCount:     c.HitCount,
		IgnoreCount:  c.IgnoreCount,
		Space:        c.Space,
	}
}

// DecodeCheckpoint decodes a CheckpointGet reply. Older emulators omit
// the trailing memory space byte.
func DecodeCheckpoint(body []byte) (CheckpointInfo, error) {
	d := newDecoder(CmdCheckpointGet, body)
	cp := CheckpointInfo{
		Number:       d.u32(),
		Hit:          d.flag(),
		Start:        d.u16(),
		End:          d.u16(),
		Stop:         d.flag(),
		Enabled:      d.flag(),
		Operations:   CPUOperation(d.u8()),
		Temporary:    d.flag(),
		HitCount:     d.u32(),
		IgnoreCount:  d.u32(),
		HasCondition: d.flag(),
	}
	if d.err == nil && d.off < len(body) {
		cp.Space = MemSpace(d.u8())
	}
	return cp, d.err
}

// EncodeCheckpoint builds a CheckpointGet reply body.
func EncodeCheckpoint(cp CheckpointInfo) []byte {
	return newEncoder(23).
		u32(cp.Number).
		flag(cp.Hit).
		u16(cp.Start).
		u16(cp.End).
		flag(cp.Stop).
		flag(cp.Enabled).
		u8(uint8(cp.Operations)).
		flag(cp.Temporary).
		u32(cp.HitCount).
		u32(cp.IgnoreCount).
		flag(cp.HasCondition).
		u8(uint8(cp.Space)).
		bytes()
}

// DecodeCheckpointList returns the checkpoint count of a CheckpointList reply.
func DecodeCheckpointList(body []byte) (uint32, error) {
	d := newDecoder(CmdCheckpointList, body)
	n := d.u32()
	return n, d.err
}

// DecodeProgramCounter returns the PC carried by Stopped, Resumed, Jam
// and Undump replies.
func DecodeProgramCounter(cmd CommandType, body []byte) (uint16, error) {
	d := newDecoder(cmd, body)
	pc := d.u16()
	return pc, d.err
}

// EncodeProgramCounter builds a Stopped/Resumed/Jam body.
func EncodeProgramCounter(pc uint16) []byte {
	return newEncoder(2).u16(pc).bytes()
}

// DecodeDisplay decodes a DisplayGet reply. The first field gives the
// length of the geometry block, so geometry added by newer emulators is
// skipped.
func DecodeDisplay(body []byte) (DisplayFrame, error) {
	d := newDecoder(CmdDisplayGet, body)
	fieldsLength := int(d.u32())
	start := d.off
	frame := DisplayFrame{
		Width:        d.u16(),
		Height:       d.u16(),
		Left:         d.u16(),
		Top:          d.u16(),
		ScreenWidth:  d.u16(),
		ScreenHeight: d.u16(),
		BitsPerPixel: d.u8(),
	}
	d.seek(start + fieldsLength)
	n := int(d.u32())
	frame.Image = d.raw(n)
	if d.err != nil {
		return DisplayFrame{}, d.err
	}
	return frame, nil
}

// EncodeDisplay builds a DisplayGet reply body.
func EncodeDisplay(frame DisplayFrame) []byte {
	return newEncoder(4 + 13 + 4 + len(frame.Image)).
		u32(13).
		u16(frame.Width).
		u16(frame.Height).
		u16(frame.Left).
		u16(frame.Top).
		u16(frame.ScreenWidth).
		u16(frame.ScreenHeight).
		u8(frame.BitsPerPixel).
		u32(uint32(len(frame.Image))).
		raw(frame.Image).
		bytes()
}

// DecodeResource decodes a ResourceGet reply.
func DecodeResource(body []byte) (ResourceValue, error) {
	d := newDecoder(CmdResourceGet, body)
	v := ResourceValue{Type: ResourceType(d.u8())}
	raw := d.raw(int(d.u8()))
	if d.err != nil {
		return ResourceValue{}, d.err
	}
	switch v.Type {
	case ResourceInt:
		var n uint32
		for i := len(raw) - 1; i >= 0; i-- {
			n = n<<8 | uint32(raw[i])
		}
		v.Int = int32(n)
	case ResourceString:
		v.String = string(raw)
	default:
		return v, fmt.Errorf("resource: unknown value type $%02X", uint8(v.Type))
	}
	return v, nil
}
