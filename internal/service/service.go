// Package service реализует бизнес-логику книжного маркетплейса.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/bookmarket-system/internal/model"
	"github.com/mmeshcher/bookmarket-system/internal/repository"
)

// ErrInvalidCredentials возвращается при неверной паре email/пароль.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden возвращается при несоответствии роли или владельца ресурса.
	ErrForbidden = errors.New("forbidden")
	// ErrListingUnavailable возвращается при попытке положить в корзину проданную книгу.
	ErrListingUnavailable = errors.New("listing is not available")
	// ErrOwnListing возвращается при попытке купить собственное объявление.
	ErrOwnListing = errors.New("cannot add own listing to cart")
	// ErrSelfMessage возвращается при попытке отправить сообщение самому себе.
	ErrSelfMessage = errors.New("cannot message yourself")
	// ErrUnsupportedImage возвращается при загрузке файла неподдерживаемого формата.
	ErrUnsupportedImage = errors.New("unsupported image format")
)

// Actor описывает субъекта операции: кто и в какой роли её выполняет.
type Actor struct {
	UserID int64
	Role   model.Role
}

// authorize — единая проверка прав на операцию.
// Пустая requiredRole пропускает проверку роли, нулевой ownerID — проверку владельца.
func authorize(actor Actor, requiredRole model.Role, ownerID int64) error {
	if requiredRole != "" && actor.Role != requiredRole {
		return ErrForbidden
	}
	if ownerID != 0 && actor.UserID != ownerID {
		return ErrForbidden
	}
	return nil
}

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Service содержит бизнес-логику маркетплейса.
type Service struct {
	repo      repository.Repository
	uploadDir string
}

// NewService создаёт новый сервис с указанным репозиторием и каталогом загрузок.
func NewService(repo repository.Repository, uploadDir string) *Service {
	return &Service{
		repo:      repo,
		uploadDir: uploadDir,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, email, password, name string, role model.Role) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.repo.CreateUser(ctx, email, hash, name, role)
	if err != nil {
		return nil, err
	}

	return s.repo.GetUserByID(ctx, id)
}

// AuthenticateUser проверяет email и пароль пользователя.
// Неизвестный email и неверный пароль неразличимы для вызывающего.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (s *Service) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// CreateListing создаёт объявление от имени продавца.
func (s *Service) CreateListing(ctx context.Context, actor Actor, l *model.Listing) (*model.Listing, error) {
	if err := authorize(actor, model.RoleSeller, 0); err != nil {
		return nil, err
	}

	l.SellerID = actor.UserID
	id, err := s.repo.CreateListing(ctx, l)
	if err != nil {
		return nil, err
	}

	return s.repo.GetListingByID(ctx, id)
}

// SaveListingImage сохраняет загруженную обложку и возвращает её публичный URL.
func (s *Service) SaveListingImage(data []byte, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedImageExts[ext] {
		return "", ErrUnsupportedImage
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.uploadDir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}

	return "/uploads/" + name, nil
}

// FindListings возвращает доступные объявления по фильтру.
func (s *Service) FindListings(ctx context.Context, filter model.ListingFilter) ([]model.Listing, error) {
	return s.repo.FindListings(ctx, filter)
}

// GetListingByID возвращает объявление по идентификатору.
func (s *Service) GetListingByID(ctx context.Context, id int64) (*model.Listing, error) {
	return s.repo.GetListingByID(ctx, id)
}

// UpdateListing применяет частичное обновление объявления от имени его владельца.
func (s *Service) UpdateListing(ctx context.Context, actor Actor, id int64, patch model.ListingPatch) (*model.Listing, error) {
	l, err := s.repo.GetListingByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := authorize(actor, model.RoleSeller, l.SellerID); err != nil {
		return nil, err
	}

	return s.repo.UpdateListing(ctx, id, patch)
}

// DeleteListing удаляет объявление от имени его владельца.
func (s *Service) DeleteListing(ctx context.Context, actor Actor, id int64) error {
	l, err := s.repo.GetListingByID(ctx, id)
	if err != nil {
		return err
	}

	if err := authorize(actor, model.RoleSeller, l.SellerID); err != nil {
		return err
	}

	_, err = s.repo.DeleteListing(ctx, id)
	return err
}

// GetCart возвращает корзину покупателя с данными объявлений.
func (s *Service) GetCart(ctx context.Context, buyerID int64) ([]model.CartItem, error) {
	return s.repo.GetCartByBuyer(ctx, buyerID)
}

// AddToCart добавляет объявление в корзину.
// Объявление должно существовать, быть доступным и не принадлежать покупателю.
func (s *Service) AddToCart(ctx context.Context, actor Actor, listingID int64) (*model.CartEntry, bool, error) {
	l, err := s.repo.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, false, err
	}
	if !l.IsAvailable {
		return nil, false, ErrListingUnavailable
	}
	if l.SellerID == actor.UserID {
		return nil, false, ErrOwnListing
	}

	return s.repo.AddCartEntry(ctx, actor.UserID, listingID)
}

// RemoveFromCart удаляет объявление из корзины. Операция идемпотентна.
func (s *Service) RemoveFromCart(ctx context.Context, buyerID, listingID int64) error {
	_, err := s.repo.RemoveCartEntry(ctx, buyerID, listingID)
	return err
}

// Checkout оформляет заказ из текущей корзины покупателя.
// Итоговая сумма передаётся клиентом и сохраняется как есть;
// сервис проверяет только корректность формата.
func (s *Service) Checkout(ctx context.Context, buyerID int64, total string) (*model.Order, []int64, error) {
	totalCents, err := model.ParseCents(total)
	if err != nil {
		return nil, nil, err
	}

	return s.repo.CreateOrder(ctx, buyerID, totalCents)
}

// GetOrdersByBuyer возвращает заказы покупателя со строками и данными объявлений.
func (s *Service) GetOrdersByBuyer(ctx context.Context, buyerID int64) ([]model.Order, error) {
	return s.repo.GetOrdersByBuyer(ctx, buyerID)
}

// SendMessage отправляет сообщение другому пользователю.
func (s *Service) SendMessage(ctx context.Context, senderID, receiverID int64, listingID *int64, content string) (*model.Message, error) {
	if senderID == receiverID {
		return nil, ErrSelfMessage
	}

	if _, err := s.repo.GetUserByID(ctx, receiverID); err != nil {
		return nil, err
	}

	if listingID != nil {
		if _, err := s.repo.GetListingByID(ctx, *listingID); err != nil {
			return nil, err
		}
	}

	return s.repo.CreateMessage(ctx, senderID, receiverID, listingID, content)
}

// GetMessageThread возвращает переписку с другим пользователем по возрастанию времени.
func (s *Service) GetMessageThread(ctx context.Context, userID, otherUserID int64) ([]model.Message, error) {
	if _, err := s.repo.GetUserByID(ctx, otherUserID); err != nil {
		return nil, err
	}

	return s.repo.GetMessageThread(ctx, userID, otherUserID)
}
