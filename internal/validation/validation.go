// Package validation содержит проверки пользовательского ввода.
package validation

import (
	"net/mail"
	"strings"

	"github.com/mmeshcher/bookmarket-system/internal/model"
)

// MinPasswordLength задаёт минимальную длину пароля при регистрации.
const MinPasswordLength = 6

// IsValidEmail проверяет, что строка является корректным адресом электронной почты.
func IsValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}

	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}

	// mail.ParseAddress принимает формы с display name, нам нужен голый адрес.
	return addr.Address == email
}

// IsValidPassword проверяет минимальные требования к паролю.
func IsValidPassword(password string) bool {
	return len(password) >= MinPasswordLength
}

// IsValidRole проверяет, что роль является одной из поддерживаемых.
func IsValidRole(role string) bool {
	return model.Role(role).Valid()
}

// IsValidCondition проверяет, что состояние книги является одним из поддерживаемых.
func IsValidCondition(condition string) bool {
	return model.Condition(condition).Valid()
}

// IsValidPrice проверяет, что строка является неотрицательной денежной суммой
// с не более чем двумя знаками после точки.
func IsValidPrice(price string) bool {
	_, err := model.ParseCents(price)
	return err == nil
}
