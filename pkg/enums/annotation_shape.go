package enums

import "fmt"

// AnnotationShape is the drawn primitive of an annotation.
type AnnotationShape string

const (
	AnnotationShapePin       AnnotationShape = "pin"
	AnnotationShapeRectangle AnnotationShape = "rectangle"
	AnnotationShapeArrow     AnnotationShape = "arrow"
	AnnotationShapeFreehand  AnnotationShape = "freehand"
)

var validAnnotationShapes = []AnnotationShape{
	AnnotationShapePin,
	AnnotationShapeRectangle,
	AnnotationShapeArrow,
	AnnotationShapeFreehand,
}

func (s AnnotationShape) IsValid() bool {
	for _, candidate := range validAnnotationShapes {
		if candidate == s {
			return true
		}
	}
	return false
}

// MinPoints returns how many coordinate pairs the shape needs.
func (s AnnotationShape) MinPoints() int {
	switch s {
	case AnnotationShapePin:
		return 1
	case AnnotationShapeRectangle, AnnotationShapeArrow, AnnotationShapeFreehand:
		return 2
	default:
		return 0
	}
}

func ParseAnnotationShape(value string) (AnnotationShape, error) {
	for _, candidate := range validAnnotationShapes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid annotation shape %q", value)
}
