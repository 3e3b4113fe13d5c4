package main

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/attic/vicemon/internal/testutil"
	"github.com/attic/vicemon/viceprotocol"
)

// testFrame builds a 4x3 capture whose visible area is the 2x2 block at
// (1,1). Border pixels are light blue, the screen is blue with one white
// pixel at its top-left.
func testFrame() viceprotocol.DisplayFrame {
	img := bytes.Repeat([]byte{14}, 4*3)
	img[1*4+1] = 1
	img[1*4+2] = 6
	img[2*4+1] = 6
	img[2*4+2] = 6
	return viceprotocol.DisplayFrame{
		Image:        img,
		Width:        4,
		Height:       3,
		BitsPerPixel: 8,
		Left:         1,
		Top:          1,
		ScreenWidth:  2,
		ScreenHeight: 2,
	}
}

func TestWritePNGCropsAndScales(t *testing.T) {
	var buf bytes.Buffer
	if err := writePNG(&buf, testFrame(), 3); err != nil {
		t.Fatalf("writePNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}

	if b := img.Bounds(); b.Dx() != 6 || b.Dy() != 6 {
		t.Fatalf("image is %dx%d, want 6x6", b.Dx(), b.Dy())
	}

	white := color.RGBAModel.Convert(c64Palette[1])
	blue := color.RGBAModel.Convert(c64Palette[6])
	checks := []struct {
		x, y int
		want color.Color
	}{
		{0, 0, white},
		{2, 2, white},
		{3, 0, blue},
		{0, 3, blue},
		{5, 5, blue},
	}
	for _, c := range checks {
		if got := color.RGBAModel.Convert(img.At(c.x, c.y)); got != c.want {
			t.Errorf("pixel (%d,%d) = %v, want %v", c.x, c.y, got, c.want)
		}
	}
}

func TestFrameImageWithoutVisibleArea(t *testing.T) {
	frame := testFrame()
	frame.ScreenWidth = 0
	img, err := frameImage(frame)
	if err != nil {
		t.Fatalf("frameImage: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Errorf("image is %dx%d, want the full 4x3 capture", b.Dx(), b.Dy())
	}
}

func TestFrameImageRejectsBadFrames(t *testing.T) {
	deep := testFrame()
	deep.BitsPerPixel = 32
	if _, err := frameImage(deep); err == nil {
		t.Error("32-bit frame accepted")
	}

	short := testFrame()
	short.Image = short.Image[:5]
	if _, err := frameImage(short); err == nil {
		t.Error("truncated frame accepted")
	}
}

func TestFrameImageLeavesCaptureUntouched(t *testing.T) {
	frame := testFrame()
	frame.Image[0] = 0x1E
	if _, err := frameImage(frame); err != nil {
		t.Fatal(err)
	}
	if frame.Image[0] != 0x1E {
		t.Errorf("capture modified: $%02X", frame.Image[0])
	}
}

func TestScreenBufferWaitNewer(t *testing.T) {
	s := newScreenBuffer()
	if _, seq := s.Latest(); seq != 0 {
		t.Fatalf("new buffer has seq %d", seq)
	}

	got := make(chan viceprotocol.DisplayFrame, 1)
	go func() {
		frame, err := s.WaitNewer(context.Background(), 0)
		if err == nil {
			got <- frame
		}
	}()

	s.RefreshScreen(testFrame())
	frame := testutil.RequireReceive(t, got, 2*time.Second, "WaitNewer after RefreshScreen")
	if frame.Width != 4 {
		t.Errorf("Width = %d, want 4", frame.Width)
	}

	// Already newer: returns at once.
	if _, err := s.WaitNewer(context.Background(), 0); err != nil {
		t.Errorf("WaitNewer(0) = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.WaitNewer(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitNewer(1) = %v, want deadline exceeded", err)
	}
}
