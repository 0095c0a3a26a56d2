package domain

// CallType classifies the reason for a call.
type CallType string

const (
	CallTypeGeneral     CallType = "Consulta General"
	CallTypeUrgent      CallType = "Urgencia"
	CallTypeFollowUp    CallType = "Seguimiento"
	CallTypeInformation CallType = "Información"
)

// CallStatus is the lifecycle state of a call.
type CallStatus string

const (
	StatusActive  CallStatus = "active"
	StatusWaiting CallStatus = "waiting"
	StatusEnded   CallStatus = "ended"
)

// Valid reports whether s is a known status.
func (s CallStatus) Valid() bool {
	switch s {
	case StatusActive, StatusWaiting, StatusEnded:
		return true
	}
	return false
}

// Priority ranks calls in the waiting queue.
type Priority string

const (
	PriorityUrgent Priority = "Urgencia"
	PriorityHigh   Priority = "Alta"
	PriorityNormal Priority = "Normal"
	PriorityLow    Priority = "Baja"
)

// Rank orders priorities for the waiting queue; higher is served first.
// Unknown values rank below Baja.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// EventType names a lifecycle transition recorded in call_events.
type EventType string

const (
	EventStarted  EventType = "started"
	EventEnded    EventType = "ended"
	EventTransfer EventType = "transfer"
	EventAttend   EventType = "attend"
	EventHold     EventType = "hold"
	EventWaiting  EventType = "waiting"
)

// NotificationType distinguishes the webhook that raised a notification.
type NotificationType string

const (
	NotificationCallStarted NotificationType = "call_started"
	NotificationCallEnded   NotificationType = "call_ended"
)
