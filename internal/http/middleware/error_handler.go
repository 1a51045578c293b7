package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/festmatch/festmatch-backend/internal/logger"
	"github.com/festmatch/festmatch-backend/internal/models"
	"github.com/festmatch/festmatch-backend/internal/pkg/apperror"
	"github.com/festmatch/festmatch-backend/internal/repository"
	"github.com/festmatch/festmatch-backend/internal/service"
)

// ErrorHandler обрабатывает ошибки централизованно. Маскирует внутренние
// ошибки и возвращает понятные сообщения клиенту.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		if len(c.Errors) > 0 {
			err := c.Errors.Last()

			if logger.Log != nil {
				logger.Log.WithFields(logrus.Fields{
					"error":  err.Error(),
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
				}).Error("Request error")
			}

			statusCode, message := mapError(err.Err)
			c.JSON(statusCode, gin.H{"error": message})
		}
	}
}

// mapError переводит доменные ошибки в HTTP статус и сообщение клиенту.
func mapError(err error) (int, string) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus, appErr.Message
	}

	switch {
	case errors.Is(err, repository.ErrMatchNotFound):
		return http.StatusNotFound, "матч не найден"
	case errors.Is(err, repository.ErrDisputeNotFound):
		return http.StatusNotFound, "спор не найден"
	case errors.Is(err, repository.ErrUserNotFound):
		return http.StatusNotFound, "пользователь не найден"
	case errors.Is(err, repository.ErrExperienceNotFound):
		return http.StatusNotFound, "впечатление не найдено"

	case errors.Is(err, repository.ErrInvalidTransition):
		return http.StatusConflict, "статус матча не допускает эту операцию"
	case errors.Is(err, repository.ErrAlreadyResolved):
		return http.StatusConflict, "спор уже разрешён"
	case errors.Is(err, repository.ErrDuplicateDispute):
		return http.StatusConflict, "по этому матчу уже открыт спор"
	case errors.Is(err, repository.ErrIntegrityHold):
		return http.StatusConflict, "кошелёк заморожен до завершения проверки"

	case errors.Is(err, repository.ErrInsufficientFunds),
		errors.Is(err, service.ErrFundingFailed):
		return http.StatusPaymentRequired, "недостаточно средств, пополните кошелёк и повторите"

	case errors.Is(err, repository.ErrUserBanned):
		return http.StatusForbidden, "пользователь заблокирован"
	case errors.Is(err, service.ErrNotParticipant):
		return http.StatusForbidden, "у вас нет прав на этот объект"

	case errors.Is(err, service.ErrBelowMinimum):
		return http.StatusBadRequest, "сумма меньше минимального пополнения"
	case errors.Is(err, repository.ErrNonPositiveAmount):
		return http.StatusBadRequest, "сумма должна быть положительной"
	case errors.Is(err, service.ErrSelfMatch):
		return http.StatusBadRequest, "нельзя подать заявку на собственное впечатление"
	case errors.Is(err, service.ErrOverCapacity):
		return http.StatusBadRequest, "количество участников превышает вместимость"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusConflict, "матч ещё не начался"
	case errors.Is(err, service.ErrNotDisputable):
		return http.StatusConflict, "статус матча не допускает спор"
	case errors.Is(err, service.ErrDisputeWindow):
		return http.StatusConflict, "окно открытия спора истекло"
	case errors.Is(err, service.ErrNoPaidAmount):
		return http.StatusConflict, "по матчу нет оплаченной суммы для возврата"
	case errors.Is(err, service.ErrInvalidAction),
		errors.Is(err, service.ErrActionNeedsTarget):
		return http.StatusBadRequest, "некорректное действие администратора"
	case errors.Is(err, models.ErrUnknownResolution),
		errors.Is(err, models.ErrInvalidRefundPercent),
		errors.Is(err, models.ErrUnexpectedRefundPercent):
		return http.StatusBadRequest, "некорректное решение по спору"
	}

	if msg := err.Error(); msg != "" && !containsInternalKeywords(msg) {
		return http.StatusBadRequest, msg
	}
	return http.StatusInternalServerError, "внутренняя ошибка сервера"
}

// containsInternalKeywords проверяет, содержит ли строка ключевые слова внутренних ошибок.
func containsInternalKeywords(s string) bool {
	keywords := []string{
		"sql:",
		"database",
		"connection",
		"timeout",
		"internal",
		"panic",
		"runtime",
	}

	lower := strings.ToLower(s)
	for _, keyword := range keywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
