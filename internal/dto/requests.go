package dto

import "time"

// TopUpRequest — пополнение кошелька.
type TopUpRequest struct {
	Amount     float64 `json:"amount" binding:"required,gt=0"`
	PaymentRef string  `json:"payment_ref"`
}

// CreateMatchRequest — заявка на бронирование впечатления.
type CreateMatchRequest struct {
	ExperienceID string     `json:"experience_id" binding:"required,uuid"`
	Participants int        `json:"participants" binding:"required,gte=1"`
	StartDate    *time.Time `json:"start_date"`
}

// RejectMatchRequest — отклонение заявки хостом.
type RejectMatchRequest struct {
	Reason *string `json:"reason"`
}

// OpenDisputeRequest — открытие спора по матчу.
type OpenDisputeRequest struct {
	Reason      string `json:"reason" binding:"required"`
	Description string `json:"description"`
}

// DisputeMessageRequest — сообщение в тред спора.
type DisputeMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

// ResolveDisputeRequest — решение администратора по спору.
type ResolveDisputeRequest struct {
	Resolution       string  `json:"resolution" binding:"required"`
	RefundPercentage *int    `json:"refund_percentage"`
	AdminAction      string  `json:"admin_action"`
	ActionTarget     *string `json:"action_target"`
	AdminNotes       *string `json:"admin_notes"`
}
