package models

import "time"

// ImageType is the semantic role of an image inside an article.
type ImageType string

const (
	ImagePrincipal  ImageType = "principal"
	ImageConclusion ImageType = "conclusion"
	ImageBefore     ImageType = "antes"
	ImageAfter      ImageType = "despues"
	ImageContent    ImageType = "contenido"
)

// ImageRef describes one uploaded image.
type ImageRef struct {
	URL          string    `json:"url"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName,omitempty"`
	Type         ImageType `json:"type"`
	UploadedAt   time.Time `json:"uploadedAt"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	Size         int64     `json:"size,omitempty"`
}
