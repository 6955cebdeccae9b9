package models

// UsageReading is the current electricity usage scraped from the portal
type UsageReading struct {
	Usage float64 `json:"usage"` // kWh as shown in the chart tooltip
}
