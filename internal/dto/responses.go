package dto

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse список с параметрами пагинации.
type ListResponse struct {
	Data   interface{} `json:"data"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// UnreadCountResponse количество непрочитанных уведомлений.
type UnreadCountResponse struct {
	Count int `json:"count"`
}

// WebhookAck подтверждение приёма события платёжного провайдера.
type WebhookAck struct {
	Received bool `json:"received"`
}
