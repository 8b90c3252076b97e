package export

import (
	"fmt"
	"io"
	"math"
	"strings"
)

// Curve is one polyline of an SVG plot.
type Curve struct {
	Label  string
	X, Y   []float64
	Stroke string
}

type bounds struct {
	minX, maxX, minY, maxY float64
}

func curveBounds(curves []Curve) (bounds, bool) {
	b := bounds{math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)}
	found := false
	for _, c := range curves {
		for i := range c.X {
			if i >= len(c.Y) || !finite(c.X[i]) || !finite(c.Y[i]) {
				continue
			}
			b.minX = math.Min(b.minX, c.X[i])
			b.maxX = math.Max(b.maxX, c.X[i])
			b.minY = math.Min(b.minY, c.Y[i])
			b.maxY = math.Max(b.maxY, c.Y[i])
			found = true
		}
	}
	return b, found
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// CurvesToSVG draws the curves on shared axes with 10% padding. Non-finite
// points break a curve into separate segments.
func CurvesToSVG(w io.Writer, curves []Curve, width, height int) error {
	b, ok := curveBounds(curves)
	if !ok {
		return fmt.Errorf("no finite points to plot")
	}

	rangeX := b.maxX - b.minX
	rangeY := b.maxY - b.minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	b.minX -= rangeX * 0.1
	b.maxX += rangeX * 0.1
	b.minY -= rangeY * 0.1
	b.maxY += rangeY * 0.1
	rangeX = b.maxX - b.minX
	rangeY = b.maxY - b.minY

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	for _, c := range curves {
		stroke := c.Stroke
		if stroke == "" {
			stroke = "#00ff00"
		}
		var d strings.Builder
		pen := false
		for i := range c.X {
			if i >= len(c.Y) || !finite(c.X[i]) || !finite(c.Y[i]) {
				pen = false
				continue
			}
			x := (c.X[i] - b.minX) / rangeX * float64(width)
			y := float64(height) - (c.Y[i]-b.minY)/rangeY*float64(height)
			if pen {
				fmt.Fprintf(&d, " L%.1f,%.1f", x, y)
			} else {
				fmt.Fprintf(&d, " M%.1f,%.1f", x, y)
				pen = true
			}
		}
		if d.Len() == 0 {
			continue
		}
		fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="%s">`, stroke, strings.TrimSpace(d.String()))
		if c.Label != "" {
			fmt.Fprintf(&sb, "<title>%s</title>", c.Label)
		}
		sb.WriteString("</path>\n")
	}

	sb.WriteString("</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

// HistoryCurves turns a potential history into curves, older iterations
// dimmer than newer ones and the last one highlighted.
func HistoryCurves(x []float64, history [][]float64) []Curve {
	curves := make([]Curve, 0, len(history))
	for i, u := range history {
		stroke := "#2f6f2f"
		if i == len(history)-1 {
			stroke = "#00ff00"
		}
		curves = append(curves, Curve{
			Label:  fmt.Sprintf("iteration %d", i),
			X:      x,
			Y:      u,
			Stroke: stroke,
		})
	}
	return curves
}
