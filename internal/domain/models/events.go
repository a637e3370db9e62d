package models

import "time"

type EventType string

const (
	EventForecastGenerated EventType = "forecast.generated"
	EventSignalEmitted     EventType = "signal.emitted"
	EventOutcomeRecorded   EventType = "outcome.recorded"
	EventTargetSuperseded  EventType = "target.superseded"
)

// Event is the envelope published to the message bus and the websocket hub.
type Event struct {
	ID          string      `json:"id"`
	Type        EventType   `json:"type"`
	PairAddress string      `json:"pairAddress"`
	OccurredAt  time.Time   `json:"occurredAt"`
	Payload     interface{} `json:"payload"`
}
