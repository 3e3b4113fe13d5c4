package viceprotocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestCommandEncoding(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		body []byte
	}{
		{"Ping", NewPingCommand(), nil},
		{"Exit", NewExitCommand(), nil},
		{"Quit", NewQuitCommand(), nil},
		{"StepOut", NewStepOutCommand(), nil},
		{"CheckpointList", NewCheckpointListCommand(), nil},
		{"BanksAvailable", NewBanksAvailableCommand(), nil},
		{"MemGet", NewMemGetCommand(0x8000, 0xFFFF, MemMain, 0, false),
			[]byte{0x00, 0x00, 0x80, 0xFF, 0xFF, 0x00, 0x00, 0x00}},
		{"MemGet drive with side effects", NewMemGetCommand(0x0300, 0x03FF, MemDrive8, 1, true),
			[]byte{0x01, 0x00, 0x03, 0xFF, 0x03, 0x01, 0x01, 0x00}},
		{"MemSet", NewMemSetCommand(0xC000, []byte{0xA9, 0x01, 0x60}, MemMain, 0, false),
			[]byte{0x00, 0x00, 0xC0, 0x02, 0xC0, 0x00, 0x00, 0x00, 0xA9, 0x01, 0x60}},
		{"CheckpointGet", NewCheckpointGetCommand(7), []byte{0x07, 0x00, 0x00, 0x00}},
		{"CheckpointDelete", NewCheckpointDeleteCommand(0x0102), []byte{0x02, 0x01, 0x00, 0x00}},
		{"CheckpointToggle off", NewCheckpointToggleCommand(3, false), []byte{0x03, 0x00, 0x00, 0x00, 0x00}},
		{"CheckpointSet breakpoint", NewCheckpointSetCommand(CheckpointSpec{
			Start: 0xC000, End: 0xC000, Stop: true, Enabled: true, Operations: OpExec,
		}), []byte{0x00, 0xC0, 0x00, 0xC0, 0x01, 0x01, 0x04, 0x00}},
		{"CheckpointSet temporary watch", NewCheckpointSetCommand(CheckpointSpec{
			Start: 0xD020, End: 0xD021, Enabled: true, Operations: OpLoad | OpStore, Temporary: true,
		}), []byte{0x20, 0xD0, 0x21, 0xD0, 0x00, 0x01, 0x03, 0x01}},
		{"RegistersGet", NewRegistersGetCommand(MemMain), []byte{0x00}},
		{"RegistersAvailable drive", NewRegistersAvailableCommand(MemDrive9), []byte{0x02}},
		{"Step", NewStepCommand(false, 1), []byte{0x00, 0x01, 0x00}},
		{"Step over zero count", NewStepCommand(true, 0), []byte{0x01, 0x01, 0x00}},
		{"DisplayGet", NewDisplayGetCommand(true, DisplayIndexed8), []byte{0x01, 0x00}},
		{"Reset hard", NewResetCommand(ResetHard), []byte{0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := tt.cmd.Encode(0x1234)
			if len(frame) != RequestHeaderSize+len(tt.body) {
				t.Fatalf("frame length = %d, want %d", len(frame), RequestHeaderSize+len(tt.body))
			}
			hdr, body, n, ok := DecodeRequest(frame)
			if !ok || n != len(frame) {
				t.Fatalf("DecodeRequest: ok=%v n=%d", ok, n)
			}
			if frame[1] != APIVersion {
				t.Errorf("API version = %d, want %d", frame[1], APIVersion)
			}
			if hdr.RequestID != 0x1234 {
				t.Errorf("request ID = $%X, want $1234", hdr.RequestID)
			}
			if hdr.Type != tt.cmd.Type {
				t.Errorf("type = %s, want %s", hdr.Type, tt.cmd.Type)
			}
			if !bytes.Equal(body, tt.body) {
				t.Errorf("body = % X, want % X", body, tt.body)
			}
		})
	}
}

func TestStringCommands(t *testing.T) {
	cmd, err := NewAutoStartCommand("game.prg", true, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte{0x01, 0x00, 0x00, 0x08}, "game.prg"...)
	if !bytes.Equal(cmd.Body, want) {
		t.Errorf("AutoStart body = % X, want % X", cmd.Body, want)
	}

	cmd, err = NewConditionSetCommand(2, "A == $20")
	if err != nil {
		t.Fatal(err)
	}
	want = append([]byte{0x02, 0x00, 0x00, 0x00, 0x08}, "A == $20"...)
	if !bytes.Equal(cmd.Body, want) {
		t.Errorf("ConditionSet body = % X, want % X", cmd.Body, want)
	}

	cmd, err = NewResourceSetCommand("WarpMode", ResourceValue{Type: ResourceInt, Int: 1})
	if err != nil {
		t.Fatal(err)
	}
	want = append(append([]byte{0x01, 0x08}, "WarpMode"...), 0x04, 0x01, 0x00, 0x00, 0x00)
	if !bytes.Equal(cmd.Body, want) {
		t.Errorf("ResourceSet body = % X, want % X", cmd.Body, want)
	}

	long := strings.Repeat("x", 256)
	constructors := map[string]func() error{
		"AutoStart":    func() error { _, err := NewAutoStartCommand(long, true, 0); return err },
		"ConditionSet": func() error { _, err := NewConditionSetCommand(1, long); return err },
		"KeyboardFeed": func() error { _, err := NewKeyboardFeedCommand(long); return err },
		"Dump":         func() error { _, err := NewDumpCommand(long, false, false); return err },
		"Undump":       func() error { _, err := NewUndumpCommand(long); return err },
		"ResourceGet":  func() error { _, err := NewResourceGetCommand(long); return err },
	}
	for name, build := range constructors {
		if err := build(); !errors.Is(err, ErrStringTooLong) {
			t.Errorf("%s with 256-byte string: err = %v, want ErrStringTooLong", name, err)
		}
	}
}

func TestRegistersSetEncoding(t *testing.T) {
	regs := Registers{A: 0x11, X: 0x22, PC: 0xC000}
	cmd := NewRegistersSetCommand(MemMain, regs, MaskA|MaskX|MaskPC)
	want := []byte{
		0x00,       // memory space
		0x03, 0x00, // count
		0x03, 0x00, 0x11, 0x00, // A
		0x03, 0x01, 0x22, 0x00, // X
		0x03, 0x03, 0x00, 0xC0, // PC
	}
	if !bytes.Equal(cmd.Body, want) {
		t.Errorf("body = % X, want % X", cmd.Body, want)
	}
}

// TestCheckpointFlagRoundTrip sends a checkpoint through the wire the way
// the emulator would echo it back and checks the local flags survive.
func TestCheckpointFlagRoundTrip(t *testing.T) {
	specs := []CheckpointSpec{
		{Start: 0xC000, End: 0xC000, Stop: true, Enabled: true, Operations: OpExec},
		{Start: 0x0400, End: 0x07FF, Enabled: true, Operations: OpStore},
		{Start: 0xD012, End: 0xD012, Stop: true, Enabled: true, Operations: OpLoad | OpStore, Temporary: true},
		{Start: 0x1000, End: 0x2000, Operations: OpLoad | OpStore | OpExec},
		{Start: 0xFFFE, End: 0xFFFF, Stop: true, Temporary: true},
	}
	for _, spec := range specs {
		t.Run(spec.Flags().String(), func(t *testing.T) {
			_, body, _, ok := DecodeRequest(NewCheckpointSetCommand(spec).Encode(1))
			if !ok {
				t.Fatal("DecodeRequest failed")
			}
			d := newDecoder(CmdCheckpointSet, body)
			echo := CheckpointInfo{
				Number:     9,
				Start:      d.u16(),
				End:        d.u16(),
				Stop:       d.flag(),
				Enabled:    d.flag(),
				Operations: CPUOperation(d.u8()),
				Temporary:  d.flag(),
			}
			if d.err != nil {
				t.Fatal(d.err)
			}

			got, err := DecodeCheckpoint(EncodeCheckpoint(echo))
			if err != nil {
				t.Fatal(err)
			}
			if got.Flags() != spec.Flags() {
				t.Errorf("flags = %s, want %s", got.Flags(), spec.Flags())
			}
			if got.Start != spec.Start || got.End != spec.End {
				t.Errorf("range = $%04X-$%04X, want $%04X-$%04X", got.Start, got.End, spec.Start, spec.End)
			}
			if ops := got.Flags().Operations(); ops != spec.Operations {
				t.Errorf("operations = %d, want %d", ops, spec.Operations)
			}
		})
	}
}

func TestCheckpointFlagsString(t *testing.T) {
	tests := []struct {
		flags CheckpointFlags
		want  string
	}{
		{0, "-------"},
		{FlagEnabled | FlagStop | FlagExec, "ES--X--"},
		{FlagEnabled | FlagLoad | FlagStore | FlagCurrent | FlagTemporary, "E-LW-*T"},
	}
	for _, tt := range tests {
		if got := tt.flags.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.flags, got, tt.want)
		}
	}
}

func TestDecodeRegisters(t *testing.T) {
	body := []byte{
		0x03, 0x00,
		0x03, byte(RegA), 0x42, 0x00,
		0x05, byte(RegPC), 0x00, 0xC0, 0xEE, 0xEE, // wider entry, trailing bytes skipped
		0x03, byte(RegLine), 0x37, 0x01,
	}
	resp, err := DecodeRegisters(body)
	if err != nil {
		t.Fatal(err)
	}
	want := []RegisterValue{{RegA, 0x42}, {RegPC, 0xC000}, {RegLine, 0x0137}}
	if len(resp.Registers) != len(want) {
		t.Fatalf("got %d registers, want %d", len(resp.Registers), len(want))
	}
	for i, w := range want {
		if resp.Registers[i] != w {
			t.Errorf("register %d = %+v, want %+v", i, resp.Registers[i], w)
		}
	}

	if _, err := DecodeRegisters(body[:7]); !errors.Is(err, ErrShortPayload) {
		t.Errorf("truncated body: err = %v, want ErrShortPayload", err)
	}
}

func TestDecodeRegistersAvailable(t *testing.T) {
	want := []RegisterDescriptor{
		{RegA, 8, "A"},
		{RegPC, 16, "PC"},
		{RegLine, 16, "LIN"},
	}
	got, err := DecodeRegistersAvailable(EncodeRegistersAvailable(want))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d descriptors, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("descriptor %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDecodeBanksAvailable(t *testing.T) {
	body := []byte{0x02, 0x00, 0x07, 0x00, 0x00, 0x03, 'c', 'p', 'u', 0x07, 0x01, 0x00, 0x03, 'r', 'a', 'm'}
	banks, err := DecodeBanksAvailable(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(banks) != 2 || banks[0] != (BankDescriptor{0, "cpu"}) || banks[1] != (BankDescriptor{1, "ram"}) {
		t.Errorf("banks = %+v", banks)
	}
}

func TestDecodeDisplay(t *testing.T) {
	frame := DisplayFrame{
		Image:        bytes.Repeat([]byte{6}, 8*4),
		Width:        8,
		Height:       4,
		BitsPerPixel: 8,
		Left:         1,
		Top:          2,
		ScreenWidth:  4,
		ScreenHeight: 2,
	}
	got, err := DecodeDisplay(EncodeDisplay(frame))
	if err != nil {
		t.Fatal(err)
	}
	if got.Width != 8 || got.Height != 4 || got.Left != 1 || got.Top != 2 ||
		got.ScreenWidth != 4 || got.ScreenHeight != 2 || got.BitsPerPixel != 8 {
		t.Errorf("geometry = %+v", got)
	}
	if !bytes.Equal(got.Image, frame.Image) {
		t.Error("image bytes differ")
	}
}

func TestDecodeResource(t *testing.T) {
	v, err := DecodeResource([]byte{0x01, 0x04, 0x39, 0x05, 0x00, 0x00})
	if err != nil || v.Type != ResourceInt || v.Int != 1337 {
		t.Errorf("int resource = %+v, %v", v, err)
	}
	v, err = DecodeResource([]byte{0x00, 0x03, 'p', 'a', 'l'})
	if err != nil || v.Type != ResourceString || v.String != "pal" {
		t.Errorf("string resource = %+v, %v", v, err)
	}
}

func TestNames(t *testing.T) {
	if got := CmdCheckpointGet.String(); got != "CheckpointGet" {
		t.Errorf("CmdCheckpointGet = %q", got)
	}
	if got := CommandType(0x99).String(); got != "?" {
		t.Errorf("unknown command = %q, want ?", got)
	}
	if got := ErrCodeInvalidMemSpace.String(); got != "invalid memory space" {
		t.Errorf("ErrCodeInvalidMemSpace = %q", got)
	}
	if got := MemDrive8.String(); got != "drive8" {
		t.Errorf("MemDrive8 = %q", got)
	}

	err := Frame{Type: CmdMemGet, Error: ErrCodeInvalidParameter, RequestID: 0x1001}.Err()
	var perr *ProtocolError
	if !errors.As(err, &perr) || perr.Code != ErrCodeInvalidParameter {
		t.Errorf("Frame.Err() = %v", err)
	}
}
