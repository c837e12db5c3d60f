package enums

import "fmt"

// MediaType classifies an asset's media.
type MediaType string

const (
	MediaTypeVideo    MediaType = "video"
	MediaTypeAudio    MediaType = "audio"
	MediaTypeImage    MediaType = "image"
	MediaTypeDocument MediaType = "document"
)

var validMediaTypes = []MediaType{
	MediaTypeVideo,
	MediaTypeAudio,
	MediaTypeImage,
	MediaTypeDocument,
}

func (m MediaType) IsValid() bool {
	for _, candidate := range validMediaTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsTimeBased reports whether annotations on this media carry a timecode.
func (m MediaType) IsTimeBased() bool {
	return m == MediaTypeVideo || m == MediaTypeAudio
}

func ParseMediaType(value string) (MediaType, error) {
	for _, candidate := range validMediaTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid media type %q", value)
}
