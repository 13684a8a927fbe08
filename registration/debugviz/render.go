// Package debugviz renders a registration attempt for visual inspection:
// an SVG/PNG scatter of both clouds' keypoints with correspondence lines
// drawn between them, built with github.com/tdewolff/canvas, plus a
// GeoJSON export of the same keypoints via
// github.com/paulmach/orb/geojson.
package debugviz

import (
	"image/png"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"

	"github.com/kwv/pcreg/registration"
)

// Scene is everything debugviz needs to render one registration attempt.
type Scene struct {
	Source       registration.DescriptorSet
	Target       registration.DescriptorSet
	Matches      registration.CorrespondenceSet
	Solution     registration.RegistrationSolution
	Padding      float64
	PointRadius  float64
}

type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderSVG writes an SVG projection of the scene's XY plane to w.
func (s Scene) RenderSVG(w io.Writer) error {
	minX, minY, maxX, maxY := s.bounds()
	width := (maxX - minX) + 2*s.Padding
	height := (maxY - minY) + 2*s.Padding

	r := svg.New(w, width, height, nil)
	s.renderToCanvas(r, minX, minY, width, height)
	return r.Close()
}

// RenderPNG writes a rasterized PNG projection of the scene's XY plane to w.
func (s Scene) RenderPNG(w io.Writer) error {
	minX, minY, maxX, maxY := s.bounds()
	width := (maxX - minX) + 2*s.Padding
	height := (maxY - minY) + 2*s.Padding

	rast := rasterizer.New(width, height, canvas.DPI(150), canvas.DefaultColorSpace)
	s.renderToCanvas(rast, minX, minY, width, height)
	return png.Encode(w, rast)
}

func (s Scene) bounds() (minX, minY, maxX, maxY float64) {
	first := true
	consider := func(p registration.Vec3) {
		if first {
			minX, maxX = p.X, p.X
			minY, maxY = p.Y, p.Y
			first = false
			return
		}
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	for _, kp := range s.Source {
		consider(kp.Position)
	}
	for _, kp := range s.Target {
		consider(kp.Position)
	}
	if first {
		return 0, 0, 1, 1
	}
	return minX, minY, maxX, maxY
}

func (s Scene) renderToCanvas(r canvasRenderer, minX, minY, width, height float64) {
	bg := canvas.DefaultStyle
	bg.Fill = canvas.Paint{Color: canvas.White}
	r.RenderPath(canvas.Rectangle(width, height), bg, canvas.Identity)

	toCanvas := func(p registration.Vec3) (float64, float64) {
		return (p.X - minX) + s.Padding, (p.Y - minY) + s.Padding
	}

	radius := s.PointRadius
	if radius <= 0 {
		radius = 2.0
	}

	srcStyle := canvas.DefaultStyle
	srcStyle.Fill = canvas.Paint{Color: canvas.Blue}
	srcStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	for _, kp := range s.Source {
		cx, cy := toCanvas(kp.Position)
		r.RenderPath(canvas.Circle(radius).Translate(cx, cy), srcStyle, canvas.Identity)
	}

	tgtStyle := canvas.DefaultStyle
	tgtStyle.Fill = canvas.Paint{Color: canvas.Red}
	tgtStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	for _, kp := range s.Target {
		cx, cy := toCanvas(kp.Position)
		r.RenderPath(canvas.Circle(radius).Translate(cx, cy), tgtStyle, canvas.Identity)
	}

	lineStyle := canvas.DefaultStyle
	lineStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	lineStyle.Stroke = canvas.Paint{Color: canvas.Lightgray}
	lineStyle.StrokeWidth = 0.5
	for _, c := range s.Matches {
		if c.I < 0 || c.I >= len(s.Source) || c.J < 0 || c.J >= len(s.Target) {
			continue
		}
		sx, sy := toCanvas(s.Source[c.I].Position)
		tx, ty := toCanvas(s.Target[c.J].Position)
		path := &canvas.Path{}
		path.MoveTo(sx, sy)
		path.LineTo(tx, ty)
		r.RenderPath(path, lineStyle, canvas.Identity)
	}
}

// ExportGeoJSON projects both clouds' keypoints onto the XY plane and
// returns a FeatureCollection with each point tagged source/target,
// usable with any GeoJSON viewer for a coordinate-accurate (if not
// geographically meaningful) inspection of the keypoint layout.
func (s Scene) ExportGeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, kp := range s.Source {
		f := geojson.NewFeature(orb.Point{kp.Position.X, kp.Position.Y})
		f.Properties["role"] = "source"
		f.Properties["index"] = i
		fc.Append(f)
	}
	for j, kp := range s.Target {
		f := geojson.NewFeature(orb.Point{kp.Position.X, kp.Position.Y})
		f.Properties["role"] = "target"
		f.Properties["index"] = j
		fc.Append(f)
	}
	return fc
}
