// Package overlay draws hand landmarks, labels and status text onto frames.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"

	"github.com/senas-lab/senas/internal/detector"
)

// StatusBarHeight is the height in pixels of the black bar at the top of the frame.
const StatusBarHeight = 32

var (
	Black = color.RGBA{0, 0, 0, 255}
	White = color.RGBA{255, 255, 255, 255}

	connectionColor = color.RGBA{224, 224, 224, 255}
	wristColor      = color.RGBA{255, 48, 48, 255}
)

// fingerColors colours landmark points by finger, thumb first.
var fingerColors = [5]color.RGBA{
	{255, 204, 0, 255},
	{128, 64, 128, 255},
	{255, 204, 0, 255},
	{48, 255, 48, 255},
	{21, 101, 192, 255},
}

func pointColor(i int) color.RGBA {
	if i == detector.Wrist {
		return wristColor
	}
	return fingerColors[(i-1)/4]
}

// toPixel maps a normalized landmark to frame coordinates.
func toPixel(p detector.Point3D, width, height int) image.Point {
	return image.Pt(int(p.X*float64(width)), int(p.Y*float64(height)))
}

// DrawHand draws the skeleton connections and the 21 landmark points.
func DrawHand(frame *gocv.Mat, hand *detector.HandLandmarks) {
	if frame == nil || hand == nil {
		return
	}
	w, h := frame.Cols(), frame.Rows()

	for _, c := range detector.Connections {
		gocv.Line(frame, toPixel(hand.Points[c.From], w, h), toPixel(hand.Points[c.To], w, h), connectionColor, 2)
	}
	for i, p := range hand.Points {
		center := toPixel(p, w, h)
		gocv.Circle(frame, center, 4, pointColor(i), -1)
		gocv.Circle(frame, center, 5, White, 1)
	}
}

// HandLabel formats the handedness label, e.g. "Left (0.97)".
func HandLabel(hand *detector.HandLandmarks) string {
	return fmt.Sprintf("%s (%.2f)", hand.Handedness, hand.Score)
}

// DrawHandLabel writes the handedness label next to the wrist.
func DrawHandLabel(frame *gocv.Mat, hand *detector.HandLandmarks) {
	if frame == nil || hand == nil {
		return
	}
	wrist := toPixel(hand.Points[detector.Wrist], frame.Cols(), frame.Rows())
	DrawOutlinedText(frame, HandLabel(hand), wrist.Add(image.Pt(10, -10)), 0.7, White)
}

// DrawOutlinedText writes text with a thick black outline under it so it
// stays readable on any background.
func DrawOutlinedText(frame *gocv.Mat, text string, org image.Point, scale float64, c color.RGBA) {
	gocv.PutTextWithParams(frame, text, org, gocv.FontHersheySimplex, scale, Black, 3, gocv.LineAA, false)
	gocv.PutTextWithParams(frame, text, org, gocv.FontHersheySimplex, scale, c, 1, gocv.LineAA, false)
}

// DrawStatusBar fills the top bar and writes text into it.
func DrawStatusBar(frame *gocv.Mat, text string) {
	if frame == nil {
		return
	}
	gocv.Rectangle(frame, image.Rect(0, 0, frame.Cols(), StatusBarHeight), Black, -1)
	gocv.PutTextWithParams(frame, text, image.Pt(10, 22), gocv.FontHersheySimplex, 0.6, White, 1, gocv.LineAA, false)
}

// DrawPrediction writes the prediction text below the status bar in c.
func DrawPrediction(frame *gocv.Mat, text string, c color.RGBA) {
	if frame == nil {
		return
	}
	DrawOutlinedText(frame, text, image.Pt(10, StatusBarHeight+40), 1.2, c)
}

// ClassColors assigns each label a colour with evenly spaced hues.
func ClassColors(labels []string) map[string]color.RGBA {
	colors := make(map[string]color.RGBA, len(labels))
	for i, label := range labels {
		hue := math.Mod(360*float64(i)/float64(len(labels)), 360)
		r, g, b := colorful.Hsv(hue, 0.75, 1).RGB255()
		colors[label] = color.RGBA{r, g, b, 255}
	}
	return colors
}

// ColorFor returns the colour of label, white when it has none.
func ColorFor(colors map[string]color.RGBA, label string) color.RGBA {
	if c, ok := colors[label]; ok {
		return c
	}
	return White
}
