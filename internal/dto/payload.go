package dto

// SceneImagePayload asks the image service to (re)generate one illustrated scene.
type SceneImagePayload struct {
	SceneID    string `json:"sceneId" validate:"required"`
	BookID     string `json:"bookId,omitempty"`
	Prompt     string `json:"prompt,omitempty" validate:"max=4000"`
	Style      string `json:"style,omitempty"`
	Regenerate bool   `json:"regenerate,omitempty"`
}

// PrintPDFPayload builds the print-ready PDF with bleed for an order.
type PrintPDFPayload struct {
	OrderID      string   `json:"orderId" validate:"required"`
	BookID       string   `json:"bookId,omitempty"`
	BleedCm      *float64 `json:"bleedCm,omitempty" validate:"omitempty,gte=0,lte=2"`
	CropMarks    bool     `json:"cropMarks,omitempty"`
	SplitCover   bool     `json:"splitCover,omitempty"`
	SplitBack    bool     `json:"splitBack,omitempty"`
	AutoTrim     bool     `json:"autoTrim,omitempty"`
	PageWidthCm  *float64 `json:"pageWidthCm,omitempty" validate:"omitempty,gte=5,lte=60"`
	PageHeightCm *float64 `json:"pageHeightCm,omitempty" validate:"omitempty,gte=5,lte=60"`
}

// PreviewRenderPayload rasterises a built PDF into preview images.
type PreviewRenderPayload struct {
	OrderID   string `json:"orderId" validate:"required"`
	PDFKey    string `json:"pdfKey" validate:"required"`
	DPI       int    `json:"dpi,omitempty" validate:"omitempty,gte=72,lte=600"`
	MaxWidth  int    `json:"maxWidth,omitempty" validate:"omitempty,gte=100,lte=4000"`
	Quality   int    `json:"quality,omitempty" validate:"omitempty,gte=1,lte=100"`
	Format    string `json:"format,omitempty" validate:"omitempty,oneof=JPEG PNG"`
	StartPage int    `json:"startPage,omitempty" validate:"omitempty,gte=1"`
	EndPage   int    `json:"endPage,omitempty" validate:"omitempty,gte=1,gtefield=StartPage"`
}
