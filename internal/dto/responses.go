package dto

// ErrorResponse — стандартный ответ с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse — стандартный успешный ответ.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// BalanceResponse — баланс кошелька для клиента.
type BalanceResponse struct {
	Balance       float64 `json:"balance"`
	IntegrityHold bool    `json:"integrity_hold"`
}

// ReconcileResponse — итог сверки кошельков.
type ReconcileResponse struct {
	Diverged int `json:"diverged"`
}
