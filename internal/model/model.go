// Package model содержит доменные сущности книжного маркетплейса.
package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Role определяет роль пользователя в маркетплейсе.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Valid сообщает, является ли роль одной из поддерживаемых.
func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleSeller
}

// Condition описывает состояние продаваемой книги.
type Condition string

const (
	ConditionLikeNew    Condition = "like_new"
	ConditionVeryGood   Condition = "very_good"
	ConditionGood       Condition = "good"
	ConditionAcceptable Condition = "acceptable"
)

// Valid сообщает, является ли состояние одним из поддерживаемых.
func (c Condition) Valid() bool {
	switch c {
	case ConditionLikeNew, ConditionVeryGood, ConditionGood, ConditionAcceptable:
		return true
	}
	return false
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// User представляет зарегистрированного пользователя маркетплейса.
type User struct {
	ID           int64
	Email        string
	PasswordHash []byte
	Name         string
	Role         Role
	CreatedAt    time.Time
}

// Listing описывает объявление о продаже книги.
type Listing struct {
	ID          int64
	Title       string
	Author      string
	Description string
	PriceCents  int64
	Condition   Condition
	Category    string
	ImageURL    string
	SellerID    int64
	IsAvailable bool
	CreatedAt   time.Time
}

// ListingFilter задаёт предикаты поиска объявлений.
// Пустые поля не участвуют в фильтрации.
type ListingFilter struct {
	Category  string
	Condition string
	Search    string
}

// ListingPatch описывает частичное обновление объявления.
// nil-поля сохраняют текущее значение.
type ListingPatch struct {
	Title       *string
	Author      *string
	Description *string
	PriceCents  *int64
	Condition   *Condition
	Category    *string
	ImageURL    *string
}

// CartEntry представляет позицию в корзине покупателя.
type CartEntry struct {
	ID        int64
	BuyerID   int64
	ListingID int64
	CreatedAt time.Time
}

// CartItem объединяет позицию корзины с данными объявления.
type CartItem struct {
	Entry   CartEntry
	Listing Listing
}

// Order описывает оформленный заказ покупателя.
type Order struct {
	ID         int64
	BuyerID    int64
	TotalCents int64
	Status     OrderStatus
	CreatedAt  time.Time
	Lines      []OrderLine
}

// OrderLine представляет строку заказа с зафиксированной ценой.
// PriceCents не меняется при последующих правках объявления.
type OrderLine struct {
	ID         int64
	OrderID    int64
	ListingID  int64
	PriceCents int64
	Listing    *Listing
}

// Message представляет сообщение между покупателем и продавцом.
type Message struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	ListingID  *int64
	Content    string
	CreatedAt  time.Time
}

// ErrInvalidAmount возвращается при разборе денежной строки некорректного формата.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseCents разбирает денежную строку вида "24.49" в целые центы.
// Суммы точнее цента отклоняются; хвостовые нули ("24.490") допустимы.
// Отрицательные суммы отклоняются.
func ParseCents(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if d.IsNegative() {
		return 0, ErrInvalidAmount
	}
	if !d.Equal(d.Truncate(2)) {
		return 0, ErrInvalidAmount
	}
	return d.Shift(2).IntPart(), nil
}

// FormatCents форматирует целые центы в строку с двумя знаками после точки.
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
