// =============================================================================
// render.go - Output Formatting
// =============================================================================
//
// Register dumps, memory dumps, checkpoint lists and emulator events are
// formatted here. Styling uses lipgloss; with --plain every style is the
// empty style and output is plain text suitable for logs and comint.
//
// =============================================================================

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/attic/vicemon/viceprotocol"
)

// bytesPerRow is the width of a memory dump line.
const bytesPerRow = 16

type styles struct {
	header  lipgloss.Style
	address lipgloss.Style
	value   lipgloss.Style
	dim     lipgloss.Style
	event   lipgloss.Style
	errText lipgloss.Style
}

func newStyles(plain bool) styles {
	if plain {
		return styles{}
	}
	return newStylesWith(lipgloss.DefaultRenderer())
}

// newStylesWith builds the colour styles on r, whose color profile decides
// what escape codes end up in the output.
func newStylesWith(r *lipgloss.Renderer) styles {
	return styles{
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		address: r.NewStyle().Foreground(lipgloss.Color("14")),
		value:   r.NewStyle().Foreground(lipgloss.Color("15")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("8")),
		event:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		errText: r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// renderRegisters formats a register file in the layout of the VICE
// monitor's own "r" command.
func (s styles) renderRegisters(space viceprotocol.MemSpace, r viceprotocol.Registers) string {
	var b strings.Builder
	b.WriteString(s.header.Render("  ADDR A  X  Y  SP 00 01 NV-BDIZC LIN CYC"))
	b.WriteByte('\n')
	fmt.Fprintf(&b, "%s %s %s\n",
		s.dim.Render(spacePrefix(space)),
		s.address.Render(fmt.Sprintf("%04X", r.PC)),
		s.value.Render(fmt.Sprintf("%02X %02X %02X %02X %02X %02X %08b %03d %03d",
			r.A, r.X, r.Y, r.SP, r.Zero, r.One, r.Flags, r.Line, r.Cycle)),
	)
	return b.String()
}

// renderCheckpointsAt notes the execution checkpoints sitting on pc.
func (s styles) renderCheckpointsAt(pc uint16, list []viceprotocol.Checkpoint) string {
	var b strings.Builder
	for _, cp := range list {
		fmt.Fprintf(&b, "%s\n", s.event.Render(fmt.Sprintf("Checkpoint #%d at $%04X", cp.Number, pc)))
	}
	return b.String()
}

// spacePrefix is the monitor's memory space marker: ".;" for the
// computer, "8:" to "11:" for drives.
func spacePrefix(space viceprotocol.MemSpace) string {
	if space == viceprotocol.MemMain {
		return ".;"
	}
	return fmt.Sprintf("%d:", int(space)+7)
}

// renderMemory formats data read from start as a hex dump.
func (s styles) renderMemory(start uint16, data []byte) string {
	var b strings.Builder
	for off := 0; off < len(data); off += bytesPerRow {
		row := data[off:min(off+bytesPerRow, len(data))]

		var hex strings.Builder
		for i := 0; i < bytesPerRow; i++ {
			if i < len(row) {
				fmt.Fprintf(&hex, "%02X ", row[i])
			} else {
				hex.WriteString("   ")
			}
		}

		fmt.Fprintf(&b, "%s  %s %s\n",
			s.address.Render(fmt.Sprintf(">C:%04X", uint16(int(start)+off))),
			s.value.Render(hex.String()),
			s.dim.Render(printable(row)),
		)
	}
	return b.String()
}

// printable renders bytes as ASCII with non-printing bytes as dots.
func printable(data []byte) string {
	out := make([]byte, len(data))
	for i, c := range data {
		if c >= 0x20 && c < 0x7F {
			out[i] = c
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}

// renderCheckpoints formats the checkpoint store.
func (s styles) renderCheckpoints(list []viceprotocol.Checkpoint) string {
	if len(list) == 0 {
		return s.dim.Render("No checkpoints.") + "\n"
	}
	var b strings.Builder
	b.WriteString(s.header.Render("    #  RANGE        FLAGS    HITS IGNORE SPACE"))
	b.WriteByte('\n')
	for _, cp := range list {
		cond := ""
		if cp.HasCondition {
			cond = " if ..."
		}
		fmt.Fprintf(&b, "%5d  %s  %s %5d %6d %s%s\n",
			cp.Number,
			s.address.Render(fmt.Sprintf("$%04X-$%04X", cp.Start, cp.End)),
			s.value.Render(cp.Flags.String()),
			cp.HitCount, cp.IgnoreCount, cp.Space, cond,
		)
	}
	return b.String()
}

// renderEvent formats an asynchronous emulator event. It returns "" for
// events that are not worth interrupting the prompt for.
func (s styles) renderEvent(ev viceprotocol.Event) string {
	switch ev.Type {
	case viceprotocol.CmdStopped:
		return s.event.Render(fmt.Sprintf("*** Stopped at $%04X", ev.PC))
	case viceprotocol.CmdJam:
		return s.errText.Render(fmt.Sprintf("*** CPU JAM at $%04X", ev.PC))
	case viceprotocol.CmdResumed:
		return s.dim.Render(fmt.Sprintf("*** Running from $%04X", ev.PC))
	case viceprotocol.CmdCheckpointGet:
		cp := ev.Checkpoint
		return s.event.Render(fmt.Sprintf("*** Checkpoint #%d hit at $%04X (%s)",
			cp.Number, cp.Start, cp.Flags()))
	case viceprotocol.CmdUndump:
		return s.event.Render(fmt.Sprintf("*** Snapshot loaded, PC $%04X", ev.PC))
	case viceprotocol.CmdResourceGet:
		if ev.Resource.Type == viceprotocol.ResourceInt {
			return fmt.Sprintf("resource = %d", ev.Resource.Int)
		}
		return fmt.Sprintf("resource = %q", ev.Resource.String)
	}
	return ""
}

// renderRegisterNames formats a RegistersAvailable reply.
func (s styles) renderRegisterNames(regs []viceprotocol.RegisterDescriptor) string {
	var b strings.Builder
	for _, r := range regs {
		fmt.Fprintf(&b, "  %s  %-6s %2d bits\n",
			s.address.Render(fmt.Sprintf("$%02X", uint8(r.ID))), r.Name, r.Bits)
	}
	return b.String()
}

// renderBanks formats a BanksAvailable reply.
func (s styles) renderBanks(banks []viceprotocol.BankDescriptor) string {
	var b strings.Builder
	for _, bank := range banks {
		fmt.Fprintf(&b, "  %s  %s\n", s.address.Render(fmt.Sprintf("%3d", bank.ID)), bank.Name)
	}
	return b.String()
}
