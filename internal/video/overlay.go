package video

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/banshee-data/boxtrack/internal/annotation"
)

// Overlay draws the outline of r onto dst, two pixels wide, with label
// written just above its top-left corner. Parts outside dst are clipped.
func Overlay(dst draw.Image, r annotation.Region, c color.Color, label string) {
	rect := image.Rect(
		int(math.Floor(r.X)), int(math.Floor(r.Y)),
		int(math.Ceil(r.X+r.Width)), int(math.Ceil(r.Y+r.Height)),
	)
	src := image.NewUniform(c)
	const t = 2
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+t),
		image.Rect(rect.Min.X, rect.Max.Y-t, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+t, rect.Max.Y),
		image.Rect(rect.Max.X-t, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Over)
	}

	if label == "" {
		return
	}
	face := basicfont.Face7x13
	baseline := rect.Min.Y - 3
	if baseline < face.Ascent {
		// no room above, write inside the box
		baseline = rect.Min.Y + t + face.Ascent
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  src,
		Face: face,
		Dot:  fixed.P(rect.Min.X, baseline),
	}
	d.DrawString(label)
}
