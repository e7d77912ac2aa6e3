package model

// CropRect is a pixel rectangle within an uploaded image. A zero-sized rect
// means the default centred crop.
type CropRect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r CropRect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }
