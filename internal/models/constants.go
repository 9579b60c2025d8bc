package models

// TaskStatus константы статусов задач
const (
	TaskStatusOpen        = "open"
	TaskStatusInProgress  = "in_progress"
	TaskStatusUnderReview = "under_review"
	TaskStatusCompleted   = "completed"
	TaskStatusCancelled   = "cancelled"
	TaskStatusDisputed    = "disputed"
)

// BidStatus константы статусов ставок
const (
	BidStatusPending   = "pending"
	BidStatusAccepted  = "accepted"
	BidStatusRejected  = "rejected"
	BidStatusCompleted = "completed"
	BidStatusCancelled = "cancelled"
)

// PaymentStatus константы статусов escrow-платежей
const (
	PaymentStatusPending   = "pending"
	PaymentStatusHeld      = "held"
	PaymentStatusReleased  = "released"
	PaymentStatusRefunded  = "refunded"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
)

// Типы уведомлений
const (
	NotificationTypeBidAccepted       = "bid_accepted"
	NotificationTypeDeliverySubmitted = "delivery_submitted"
	NotificationTypeTaskCompleted     = "task_completed"
	NotificationTypeTaskCancelled     = "task_cancelled"
	NotificationTypeTaskDisputed      = "task_disputed"
)

// ValidTaskStatuses список валидных статусов задач
var ValidTaskStatuses = map[string]struct{}{
	TaskStatusOpen:        {},
	TaskStatusInProgress:  {},
	TaskStatusUnderReview: {},
	TaskStatusCompleted:   {},
	TaskStatusCancelled:   {},
	TaskStatusDisputed:    {},
}

// AssignedTaskStatuses статусы, в которых у задачи обязан быть исполнитель.
var AssignedTaskStatuses = map[string]struct{}{
	TaskStatusInProgress:  {},
	TaskStatusUnderReview: {},
	TaskStatusCompleted:   {},
	TaskStatusDisputed:    {},
}
