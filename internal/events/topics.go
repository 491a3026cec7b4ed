package events

// Topic constants for domain events emitted by the pricing service.
const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
	TopicLineCorrected      = "pricing.line_corrected"
	TopicValidationPassed   = "pricing.validation_passed"
)
