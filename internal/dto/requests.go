package dto

// CreateTaskRequest запрос на публикацию задачи.
type CreateTaskRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	Budget      float64 `json:"budget" binding:"required,gt=0"`
}

// CreateBidRequest запрос на ставку по задаче.
type CreateBidRequest struct {
	Amount  float64 `json:"amount" binding:"required,gt=0"`
	Message string  `json:"message"`
}

// UpdateBidRequest запрос на изменение ставки, пока она не принята.
type UpdateBidRequest struct {
	Amount  float64 `json:"amount" binding:"required,gt=0"`
	Message string  `json:"message"`
}

// CancelTaskRequest запрос на отмену задачи.
// Для задачи на проверке reason становится претензией спора.
type CancelTaskRequest struct {
	Reason string `json:"reason"`
}

// CreateStripeAccountRequest запрос на подключение платёжного аккаунта исполнителя.
type CreateStripeAccountRequest struct {
	Email string `json:"email" binding:"required,email"`
}
