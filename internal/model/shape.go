package model

import (
	"fmt"
	"strings"
)

// Shape selects which snapshot fields are collected and stored.
type Shape string

const (
	// ShapeRich stores the full market detail record per asset.
	ShapeRich Shape = "rich"
	// ShapeMinimal stores the price only.
	ShapeMinimal Shape = "minimal"
)

// ParseShape converts a config value into a Shape.
func ParseShape(input string) (Shape, error) {
	switch Shape(strings.ToLower(strings.TrimSpace(input))) {
	case ShapeRich, "":
		return ShapeRich, nil
	case ShapeMinimal:
		return ShapeMinimal, nil
	default:
		return "", fmt.Errorf("unknown schema shape: %q", input)
	}
}

func (s Shape) String() string {
	return string(s)
}
