package cache

import "time"

// Freshness windows per collaborator.
const (
	MarketTTL    = time.Hour      // prices and 24h change
	VideoTTL     = time.Hour      // channel uploads
	NewsTTL      = 24 * time.Hour // headlines; keys are also day-scoped
	OnChainTTL   = time.Hour
	SentimentTTL = 6 * time.Hour // fear & greed publishes daily

	// DefaultRetention bounds how long any entry may sit in storage before
	// the sweep removes it, whether or not it was requested again.
	DefaultRetention = 7 * 24 * time.Hour
)
