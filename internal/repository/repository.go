// Package repository содержит контракт доступа к данным маркетплейса и его реализации.
package repository

import (
	"context"
	"errors"

	"github.com/mmeshcher/bookmarket-system/internal/model"
)

// ErrUserExists возвращается при попытке зарегистрировать уже занятый email.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrListingNotFound возвращается, если объявление не найдено.
	ErrListingNotFound = errors.New("listing not found")
	// ErrListingSold возвращается при попытке удалить объявление,
	// на которое ссылается строка оформленного заказа.
	ErrListingSold = errors.New("listing already sold")
	// ErrCartEmpty возвращается при оформлении заказа с пустой корзиной.
	ErrCartEmpty = errors.New("cart is empty")
)

// Repository описывает контракт хранилища данных маркетплейса.
// Реализации: PostgresRepository (продакшен) и MemoryRepository (тесты и демо).
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, email string, passwordHash []byte, name string, role model.Role) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)

	CreateListing(ctx context.Context, l *model.Listing) (int64, error)
	GetListingByID(ctx context.Context, id int64) (*model.Listing, error)
	FindListings(ctx context.Context, filter model.ListingFilter) ([]model.Listing, error)
	UpdateListing(ctx context.Context, id int64, patch model.ListingPatch) (*model.Listing, error)
	DeleteListing(ctx context.Context, id int64) (bool, error)

	AddCartEntry(ctx context.Context, buyerID, listingID int64) (*model.CartEntry, bool, error)
	GetCartByBuyer(ctx context.Context, buyerID int64) ([]model.CartItem, error)
	RemoveCartEntry(ctx context.Context, buyerID, listingID int64) (bool, error)

	CreateOrder(ctx context.Context, buyerID, totalCents int64) (*model.Order, []int64, error)
	GetOrdersByBuyer(ctx context.Context, buyerID int64) ([]model.Order, error)

	CreateMessage(ctx context.Context, senderID, receiverID int64, listingID *int64, content string) (*model.Message, error)
	GetMessageThread(ctx context.Context, userA, userB int64) ([]model.Message, error)
}
