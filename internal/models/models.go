// Package models provides domain models for the flag scanner.
package models

import (
	"time"
)

// Orientation is the direction of a flag pattern.
type Orientation string

const (
	Bullish Orientation = "BULLISH"
	Bearish Orientation = "BEARISH"
)

// Orientations lists both flag orientations in scan order.
var Orientations = []Orientation{Bullish, Bearish}

// Valid reports whether o is a known orientation.
func (o Orientation) Valid() bool {
	return o == Bullish || o == Bearish
}

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}
