// =============================================================================
// screen.go - Display Capture and Screenshots
// =============================================================================
//
// screenBuffer is the ScreenSink handed to the client. It keeps the most
// recent display capture and lets the REPL wait for a newer one, so that
// .screenshot can ask for a fresh frame and save it as PNG.
//
// Captures arrive as one palette index per pixel. They are cropped to the
// visible screen, mapped through the C64 palette and scaled up with
// nearest-neighbour sampling so pixels stay sharp.
//
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"sync"

	"golang.org/x/image/draw"

	"github.com/attic/vicemon/viceprotocol"
)

// c64Palette is VICE's default C64 palette.
var c64Palette = color.Palette{
	color.RGBA{0x00, 0x00, 0x00, 0xFF}, // black
	color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}, // white
	color.RGBA{0x68, 0x37, 0x2B, 0xFF}, // red
	color.RGBA{0x70, 0xA4, 0xB2, 0xFF}, // cyan
	color.RGBA{0x6F, 0x3D, 0x86, 0xFF}, // purple
	color.RGBA{0x58, 0x8D, 0x43, 0xFF}, // green
	color.RGBA{0x35, 0x28, 0x79, 0xFF}, // blue
	color.RGBA{0xB8, 0xC7, 0x6F, 0xFF}, // yellow
	color.RGBA{0x6F, 0x4F, 0x25, 0xFF}, // orange
	color.RGBA{0x43, 0x39, 0x00, 0xFF}, // brown
	color.RGBA{0x9A, 0x67, 0x59, 0xFF}, // light red
	color.RGBA{0x44, 0x44, 0x44, 0xFF}, // dark grey
	color.RGBA{0x6C, 0x6C, 0x6C, 0xFF}, // grey
	color.RGBA{0x9A, 0xD2, 0x84, 0xFF}, // light green
	color.RGBA{0x6C, 0x5E, 0xB5, 0xFF}, // light blue
	color.RGBA{0x95, 0x95, 0x95, 0xFF}, // light grey
}

// errNoFrame is returned when no display capture has arrived yet.
var errNoFrame = errors.New("no display captured yet")

// screenBuffer keeps the latest display capture.
type screenBuffer struct {
	mu      sync.Mutex
	frame   viceprotocol.DisplayFrame
	seq     uint64
	updated chan struct{}
}

func newScreenBuffer() *screenBuffer {
	return &screenBuffer{updated: make(chan struct{})}
}

// RefreshScreen stores frame and wakes anyone waiting for a newer one.
// The client hands over its own copy of the image.
func (s *screenBuffer) RefreshScreen(frame viceprotocol.DisplayFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = frame
	s.seq++
	close(s.updated)
	s.updated = make(chan struct{})
}

// Latest returns the most recent capture and its sequence number. A
// sequence of zero means nothing has been captured.
func (s *screenBuffer) Latest() (viceprotocol.DisplayFrame, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.seq
}

// WaitNewer blocks until a capture newer than seq arrives or ctx ends.
func (s *screenBuffer) WaitNewer(ctx context.Context, seq uint64) (viceprotocol.DisplayFrame, error) {
	for {
		s.mu.Lock()
		if s.seq > seq {
			frame := s.frame
			s.mu.Unlock()
			return frame, nil
		}
		updated := s.updated
		s.mu.Unlock()

		select {
		case <-updated:
		case <-ctx.Done():
			return viceprotocol.DisplayFrame{}, ctx.Err()
		}
	}
}

// frameImage converts an indexed capture into an image of the visible
// screen area. Frames that are not 8 bits per pixel are rejected.
func frameImage(frame viceprotocol.DisplayFrame) (*image.Paletted, error) {
	if frame.BitsPerPixel != 8 {
		return nil, fmt.Errorf("unsupported display depth %d", frame.BitsPerPixel)
	}
	width, height := int(frame.Width), int(frame.Height)
	if width == 0 || height == 0 || len(frame.Image) < width*height {
		return nil, fmt.Errorf("display %dx%d with %d bytes of image", width, height, len(frame.Image))
	}

	pix := make([]byte, width*height)
	for i, p := range frame.Image[:width*height] {
		pix[i] = p & 0x0F
	}
	full := &image.Paletted{
		Pix:     pix,
		Stride:  width,
		Rect:    image.Rect(0, 0, width, height),
		Palette: c64Palette,
	}

	visible := image.Rect(
		int(frame.Left), int(frame.Top),
		int(frame.Left)+int(frame.ScreenWidth), int(frame.Top)+int(frame.ScreenHeight),
	)
	if visible.Empty() || !visible.In(full.Rect) {
		return full, nil
	}
	return full.SubImage(visible).(*image.Paletted), nil
}

// writePNG encodes frame as a PNG scaled by scale.
func writePNG(w io.Writer, frame viceprotocol.DisplayFrame, scale int) error {
	src, err := frameImage(frame)
	if err != nil {
		return err
	}
	if scale < 1 {
		scale = 1
	}
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx()*scale, bounds.Dy()*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	return png.Encode(w, dst)
}

// saveScreenshot writes frame to path as a PNG.
func saveScreenshot(path string, frame viceprotocol.DisplayFrame, scale int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writePNG(f, frame, scale); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
