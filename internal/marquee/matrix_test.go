package marquee

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/ledcolor"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/testutils"
)

var tiny = Display{Name: "TINY", Width: 4, Height: 2}

func uniform(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}

	return img
}

func pixel(buf []byte, width, x, y int) []byte {
	i := (y*width + x) * 4

	return buf[i : i+4]
}

func TestDisplayByName(t *testing.T) {
	d, err := DisplayByName("galactic_unicorn")
	require.NoError(t, err)
	assert.Equal(t, 53, d.Width)
	assert.Equal(t, 11, d.Height)

	d, err = DisplayByName("I75_128X32")
	require.NoError(t, err)
	assert.Equal(t, 128*32*4, d.BufferSize())

	_, err = DisplayByName("cosmic")
	assert.Error(t, err)
}

func TestNewInitialBuffers(t *testing.T) {
	m := New(tiny, nil, ledcolor.OrderRGB, nil)

	assert.Equal(t, make([]byte, 32), m.Buffer())
	assert.Equal(t, bytes.Repeat([]byte{20}, 32), m.Background())
	assert.False(t, m.Playing())
}

func TestDisplayFramesBlend(t *testing.T) {
	tests := []struct {
		name  string
		src   color.NRGBA
		wantR uint8
		wantG uint8
		wantB uint8
	}{
		{"opaque", color.NRGBA{R: 255, A: 255}, 255, 0, 0},
		{"transparent", color.NRGBA{R: 255, G: 255, B: 255, A: 0}, 20, 20, 20},
		{"half", color.NRGBA{R: 200, G: 100, B: 0, A: 128}, 110, 60, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutils.NewRecordingWriter()
			m := New(tiny, w, ledcolor.OrderRGB, nil)
			m.ClearWithBackground(ledcolor.New(20, 20, 20, 0))

			err := m.DisplayFrames([]Frame{{Image: uniform(4, 2, tt.src)}}, DefaultImageOptions())
			require.NoError(t, err)

			assert.Equal(t, []byte{tt.wantR, tt.wantG, tt.wantB, DefaultBrightness}, pixel(m.Buffer(), 4, 3, 1))
			assert.Equal(t, 1, w.Count())
			assert.False(t, m.Playing())
		})
	}
}

func TestDisplayFramesBlendsOverLiveBuffer(t *testing.T) {
	m := New(tiny, nil, ledcolor.OrderRGB, nil)

	require.NoError(t, m.DisplayFrames([]Frame{{Image: uniform(4, 2, color.NRGBA{R: 200, G: 100, A: 128})}}, DefaultImageOptions()))

	// the snapshot is the zeroed display buffer, not the initial background
	assert.Equal(t, []byte{100, 50, 0, DefaultBrightness}, pixel(m.Buffer(), 4, 0, 0))
	assert.Equal(t, make([]byte, 32), m.Background())
}

func TestDisplayFramesColorOrder(t *testing.T) {
	w := testutils.NewRecordingWriter()
	m := New(tiny, w, ledcolor.OrderBGR, nil)

	require.NoError(t, m.DisplayFrames([]Frame{{Image: uniform(4, 2, color.NRGBA{R: 1, G: 2, B: 3, A: 255})}}, ImageOptions{Brightness: 9}))

	assert.Equal(t, []byte{1, 2, 3, 9}, pixel(m.Buffer(), 4, 0, 0))
	assert.Equal(t, []byte{3, 2, 1, 9}, w.Last()[:4])
}

func TestDisplayFramesBackground(t *testing.T) {
	m := New(tiny, testutils.NewRecordingWriter(), ledcolor.OrderRGB, nil)
	bg := ledcolor.New(0, 0, 255, 10)

	err := m.DisplayFrames([]Frame{{Image: uniform(4, 2, color.NRGBA{})}}, ImageOptions{Background: &bg, Brightness: 50})
	require.NoError(t, err)

	assert.Equal(t, []byte{0, 0, 255, 50}, pixel(m.Buffer(), 4, 2, 1))
	assert.Equal(t, []byte{0, 0, 255, 10}, pixel(m.Background(), 4, 2, 1))
}

func TestDisplayFramesSnapshotsBackground(t *testing.T) {
	m := New(tiny, testutils.NewRecordingWriter(), ledcolor.OrderRGB, nil)
	opts := DefaultImageOptions()

	require.NoError(t, m.DisplayFrames([]Frame{{Image: uniform(4, 2, color.NRGBA{G: 200, A: 255})}}, opts))
	require.NoError(t, m.DisplayFrames([]Frame{{Image: uniform(4, 2, color.NRGBA{})}}, opts))

	assert.Equal(t, []byte{0, 200, 0, DefaultBrightness}, pixel(m.Buffer(), 4, 0, 0))
	assert.Equal(t, []byte{0, 200, 0, DefaultBrightness}, pixel(m.Background(), 4, 0, 0))
}

func TestFitCrop(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 6, 2))
	for x := 0; x < 6; x++ {
		src.SetNRGBA(x, 0, color.NRGBA{R: uint8(x), A: 255})
	}

	out := fit(src, 4, 2, false)
	assert.Equal(t, uint8(1), out.NRGBAAt(0, 0).R)
	assert.Equal(t, uint8(4), out.NRGBAAt(3, 0).R)

	narrow := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	narrow.SetNRGBA(0, 0, color.NRGBA{R: 9, A: 255})

	out = fit(narrow, 4, 2, false)
	assert.Equal(t, color.NRGBA{}, out.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 9, A: 255}, out.NRGBAAt(1, 0))
	assert.Equal(t, color.NRGBA{}, out.NRGBAAt(3, 0))
}

func TestFitRescale(t *testing.T) {
	out := fit(uniform(8, 4, color.NRGBA{G: 255, A: 255}), 4, 2, true)

	assert.Equal(t, image.Rect(0, 0, 4, 2), out.Bounds())

	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			c := out.NRGBAAt(x, y)
			assert.InDelta(t, 255, int(c.G), 1)
			assert.InDelta(t, 0, int(c.R), 1)
			assert.InDelta(t, 255, int(c.A), 1)
		}
	}
}

func TestFloorDiv(t *testing.T) {
	assert.Equal(t, 1, floorDiv(2, 2))
	assert.Equal(t, 1, floorDiv(3, 2))
	assert.Equal(t, -1, floorDiv(-2, 2))
	assert.Equal(t, -2, floorDiv(-3, 2))
	assert.Equal(t, 0, floorDiv(0, 2))
}

func TestDisplayImagePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logo.png")

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, uniform(4, 2, color.NRGBA{R: 10, G: 20, B: 30, A: 255})))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	w := testutils.NewRecordingWriter()
	m := New(tiny, w, ledcolor.OrderRGB, nil)

	require.NoError(t, m.DisplayImage(path, DefaultImageOptions()))
	assert.Equal(t, []byte{10, 20, 30, DefaultBrightness}, pixel(m.Buffer(), 4, 1, 1))
	assert.Equal(t, 1, w.Count())
}

func TestDisplayImageMissingShowsText(t *testing.T) {
	w := testutils.NewRecordingWriter()
	m := New(GalacticUnicorn, w, ledcolor.OrderRGB, nil)

	err := m.DisplayImage(filepath.Join(t.TempDir(), "nope.gif"), DefaultImageOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageUnavailable)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, 1, w.Count())

	buf := m.Buffer()
	lit := 0

	for i := 0; i+3 < len(buf); i += 4 {
		if buf[i] == 255 && buf[i+1] == 255 && buf[i+2] == 255 {
			lit++
		}
	}

	assert.Positive(t, lit)
}

func TestDisplayImageUndecodable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	m := New(GalacticUnicorn, testutils.NewRecordingWriter(), ledcolor.OrderRGB, nil)

	err := m.DisplayImage(path, DefaultImageOptions())
	assert.ErrorIs(t, err, ErrImageUnavailable)
	assert.NotErrorIs(t, err, fs.ErrNotExist)
}

func TestDisplayFramesEmpty(t *testing.T) {
	m := New(tiny, nil, ledcolor.OrderRGB, nil)
	assert.ErrorIs(t, m.DisplayFrames(nil, DefaultImageOptions()), ErrNoFrames)
}

func TestAnimationPlaybackAndStop(t *testing.T) {
	w := testutils.NewRecordingWriter()
	m := New(tiny, w, ledcolor.OrderRGB, nil)

	frames := []Frame{
		{Image: uniform(4, 2, color.NRGBA{R: 255, A: 255}), Duration: 2 * time.Millisecond},
		{Image: uniform(4, 2, color.NRGBA{B: 255, A: 255}), Duration: 2 * time.Millisecond},
	}

	require.NoError(t, m.DisplayFrames(frames, DefaultImageOptions()))
	assert.True(t, m.Playing())

	testutils.WaitForCondition(t, func() bool { return w.Count() >= 4 }, 2*time.Second, "animation did not loop")

	m.Stop()
	assert.False(t, m.Playing())

	sent := w.Count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, sent, w.Count())
}

func TestDisplayTextStopsAnimation(t *testing.T) {
	w := testutils.NewRecordingWriter()
	m := New(GalacticUnicorn, w, ledcolor.OrderRGB, nil)

	frames := []Frame{
		{Image: uniform(53, 11, color.NRGBA{R: 255, A: 255}), Duration: time.Millisecond},
		{Image: uniform(53, 11, color.NRGBA{G: 255, A: 255}), Duration: time.Millisecond},
	}

	require.NoError(t, m.DisplayFrames(frames, DefaultImageOptions()))
	require.NoError(t, m.DisplayText("HI", 100))
	assert.False(t, m.Playing())
}

func TestDecodeFramesGIF(t *testing.T) {
	pal := color.Palette{color.RGBA{A: 255}, color.RGBA{R: 255, A: 255}}

	first := image.NewPaletted(image.Rect(0, 0, 4, 4), pal)
	second := image.NewPaletted(image.Rect(0, 0, 2, 2), pal)

	for i := range second.Pix {
		second.Pix[i] = 1
	}

	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, &gif.GIF{
		Image:  []*image.Paletted{first, second},
		Delay:  []int{0, 5},
		Config: image.Config{ColorModel: pal, Width: 4, Height: 4},
	}))

	frames, err := DecodeFrames(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, DefaultFrameDuration, frames[0].Duration)
	assert.Equal(t, 50*time.Millisecond, frames[1].Duration)

	r, _, _, _ := frames[1].Image.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)

	r, _, _, a := frames[1].Image.At(3, 3).RGBA()
	assert.Equal(t, uint32(0), r)
	assert.Equal(t, uint32(0xffff), a)
}

func TestRenderText(t *testing.T) {
	img := renderText("Hi", 53, 11)

	var lit, clear int

	for i := 0; i+3 < len(img.Pix); i += 4 {
		switch img.Pix[i+3] {
		case 0:
			clear++
		default:
			lit++
		}
	}

	assert.Positive(t, lit)
	assert.Greater(t, clear, lit)
}
