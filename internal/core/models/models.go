package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RegisteredFace ist der strukturierte Indexeintrag zu einem gespeicherten Gesichtsbild.
// Über den Index wird das Label einer Datei aufgelöst, ohne den Dateinamen zu zerlegen.
type RegisteredFace struct {
	gorm.Model
	Filename    string         `gorm:"uniqueIndex;not null"` // z.B. "alice_1.jpg"
	Label       string         `gorm:"index;not null"`       // Name der Person
	AngleIndex  int            `gorm:"not null"`             // 1..3
	AngleName   string         // "front", "left", "right"
	ContentHash string         `gorm:"index"`     // SHA-256 des gespeicherten JPEGs
	CaptureBox  datatypes.JSON `gorm:"type:json;null"` // Gesichtsbox im Originalframe, falls bekannt
}

// CaptureBox beschreibt die Position des Gesichts im aufgenommenen Frame
type CaptureBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}
