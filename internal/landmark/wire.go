package landmark

import "github.com/cliplab/autoframe/internal/geom"

// wireFace is the JSON face record shared by the sidecar protocol and
// replay dumps. Coordinates are normalized to [0,1] of the source frame.
type wireFace struct {
	Box        [4]float64    `json:"box"` // x, y, w, h
	Confidence float64       `json:"confidence"`
	Landmarks  wireLandmarks `json:"landmarks"`
}

type wireLandmarks struct {
	MouthTop    [2]float64 `json:"mouth_top"`
	MouthBottom [2]float64 `json:"mouth_bottom"`
	MouthLeft   [2]float64 `json:"mouth_left"`
	MouthRight  [2]float64 `json:"mouth_right"`
	LeftEye     [2]float64 `json:"left_eye"`
	RightEye    [2]float64 `json:"right_eye"`
	NoseTip     [2]float64 `json:"nose_tip"`
	Chin        [2]float64 `json:"chin"`
}

// detection converts a wire face to pixel coordinates.
func (f wireFace) detection(w, h float64) Detection {
	px := func(p [2]float64) geom.Point {
		return geom.Point{X: p[0] * w, Y: p[1] * h}
	}
	return Detection{
		Box: geom.Rect{
			X: f.Box[0] * w,
			Y: f.Box[1] * h,
			W: f.Box[2] * w,
			H: f.Box[3] * h,
		},
		Confidence: f.Confidence,
		Points: Set{
			MouthTop:    px(f.Landmarks.MouthTop),
			MouthBottom: px(f.Landmarks.MouthBottom),
			MouthLeft:   px(f.Landmarks.MouthLeft),
			MouthRight:  px(f.Landmarks.MouthRight),
			LeftEye:     px(f.Landmarks.LeftEye),
			RightEye:    px(f.Landmarks.RightEye),
			NoseTip:     px(f.Landmarks.NoseTip),
			Chin:        px(f.Landmarks.Chin),
		},
	}
}
