package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmeshcher/bookmarket-system/internal/model"
)

// MemoryRepository хранит все данные в памяти процесса.
// Используется в тестах и демонстрационном режиме (без DATABASE_URI).
// Каждая операция контракта выполняется атомарно под mutex,
// оформление заказа — целиком в одной критической секции.
type MemoryRepository struct {
	mu sync.RWMutex

	users       map[int64]*model.User
	usersByMail map[string]int64
	listings    map[int64]*model.Listing
	cartEntries map[int64]*model.CartEntry
	orders      map[int64]*model.Order
	messages    map[int64]*model.Message

	nextUserID    int64
	nextListingID int64
	nextCartID    int64
	nextOrderID   int64
	nextLineID    int64
	nextMessageID int64
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:       make(map[int64]*model.User),
		usersByMail: make(map[string]int64),
		listings:    make(map[int64]*model.Listing),
		cartEntries: make(map[int64]*model.CartEntry),
		orders:      make(map[int64]*model.Order),
		messages:    make(map[int64]*model.Message),
	}
}

// Close освобождает ресурсы хранилища. Для хранилища в памяти — no-op.
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *MemoryRepository) CreateUser(_ context.Context, email string, passwordHash []byte, name string, role model.Role) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.usersByMail[email]; exists {
		return 0, fmt.Errorf("%w: %s", ErrUserExists, email)
	}

	r.nextUserID++
	u := &model.User{
		ID:           r.nextUserID,
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         role,
		CreatedAt:    time.Now(),
	}
	r.users[u.ID] = u
	r.usersByMail[email] = u.ID

	return u.ID, nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *MemoryRepository) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.usersByMail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *r.users[id]
	return &u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *MemoryRepository) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// CreateListing сохраняет новое объявление и возвращает его идентификатор.
func (r *MemoryRepository) CreateListing(_ context.Context, l *model.Listing) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextListingID++
	cp := *l
	cp.ID = r.nextListingID
	cp.IsAvailable = true
	cp.CreatedAt = time.Now()
	r.listings[cp.ID] = &cp

	return cp.ID, nil
}

// GetListingByID возвращает объявление по идентификатору.
func (r *MemoryRepository) GetListingByID(_ context.Context, id int64) (*model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.listings[id]
	if !ok {
		return nil, ErrListingNotFound
	}
	cp := *l
	return &cp, nil
}

func matchesFilter(l *model.Listing, filter model.ListingFilter) bool {
	if !l.IsAvailable {
		return false
	}
	if filter.Category != "" && l.Category != filter.Category {
		return false
	}
	if filter.Condition != "" && string(l.Condition) != filter.Condition {
		return false
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(l.Title), needle) &&
			!strings.Contains(strings.ToLower(l.Author), needle) &&
			!strings.Contains(strings.ToLower(l.Description), needle) {
			return false
		}
	}
	return true
}

// FindListings возвращает доступные объявления, удовлетворяющие фильтру, в порядке добавления.
func (r *MemoryRepository) FindListings(_ context.Context, filter model.ListingFilter) ([]model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Listing
	for _, l := range r.listings {
		if matchesFilter(l, filter) {
			res = append(res, *l)
		}
	}

	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })

	return res, nil
}

// UpdateListing применяет частичное обновление и возвращает обновлённое объявление.
func (r *MemoryRepository) UpdateListing(_ context.Context, id int64, patch model.ListingPatch) (*model.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[id]
	if !ok {
		return nil, ErrListingNotFound
	}

	if patch.Title != nil {
		l.Title = *patch.Title
	}
	if patch.Author != nil {
		l.Author = *patch.Author
	}
	if patch.Description != nil {
		l.Description = *patch.Description
	}
	if patch.PriceCents != nil {
		l.PriceCents = *patch.PriceCents
	}
	if patch.Condition != nil {
		l.Condition = *patch.Condition
	}
	if patch.Category != nil {
		l.Category = *patch.Category
	}
	if patch.ImageURL != nil {
		l.ImageURL = *patch.ImageURL
	}

	cp := *l
	return &cp, nil
}

// DeleteListing удаляет объявление. Возвращает признак того, что запись существовала.
// Проданное объявление (на него ссылается строка заказа) удалить нельзя: ErrListingSold.
func (r *MemoryRepository) DeleteListing(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[id]; !ok {
		return false, nil
	}

	for _, o := range r.orders {
		for _, line := range o.Lines {
			if line.ListingID == id {
				return false, fmt.Errorf("%w: %d", ErrListingSold, id)
			}
		}
	}

	delete(r.listings, id)

	// Позиции корзин, ссылавшиеся на объявление, теряют смысл.
	for eid, e := range r.cartEntries {
		if e.ListingID == id {
			delete(r.cartEntries, eid)
		}
	}

	return true, nil
}

// AddCartEntry добавляет объявление в корзину покупателя.
// Повторное добавление того же объявления возвращает существующую позицию (created = false).
func (r *MemoryRepository) AddCartEntry(_ context.Context, buyerID, listingID int64) (*model.CartEntry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.cartEntries {
		if e.BuyerID == buyerID && e.ListingID == listingID {
			cp := *e
			return &cp, false, nil
		}
	}

	r.nextCartID++
	e := &model.CartEntry{
		ID:        r.nextCartID,
		BuyerID:   buyerID,
		ListingID: listingID,
		CreatedAt: time.Now(),
	}
	r.cartEntries[e.ID] = e

	cp := *e
	return &cp, true, nil
}

func (r *MemoryRepository) cartEntriesOf(buyerID int64) []*model.CartEntry {
	var res []*model.CartEntry
	for _, e := range r.cartEntries {
		if e.BuyerID == buyerID {
			res = append(res, e)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// GetCartByBuyer возвращает корзину покупателя вместе с данными объявлений.
func (r *MemoryRepository) GetCartByBuyer(_ context.Context, buyerID int64) ([]model.CartItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.CartItem
	for _, e := range r.cartEntriesOf(buyerID) {
		l, ok := r.listings[e.ListingID]
		if !ok {
			continue
		}
		res = append(res, model.CartItem{Entry: *e, Listing: *l})
	}

	return res, nil
}

// RemoveCartEntry удаляет объявление из корзины покупателя. Операция идемпотентна.
func (r *MemoryRepository) RemoveCartEntry(_ context.Context, buyerID, listingID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.cartEntries {
		if e.BuyerID == buyerID && e.ListingID == listingID {
			delete(r.cartEntries, id)
			return true, nil
		}
	}
	return false, nil
}

// CreateOrder оформляет заказ из текущей корзины покупателя.
// Вся последовательность (создание заказа, захват объявлений, очистка корзины)
// выполняется в одной критической секции, поэтому частичного результата
// при конкурентных вызовах не бывает. Объявления, которые исчезли или уже
// проданы, попадают в список unfulfilled вместо строк заказа.
func (r *MemoryRepository) CreateOrder(_ context.Context, buyerID, totalCents int64) (*model.Order, []int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.cartEntriesOf(buyerID)
	if len(entries) == 0 {
		return nil, nil, ErrCartEmpty
	}

	r.nextOrderID++
	order := &model.Order{
		ID:         r.nextOrderID,
		BuyerID:    buyerID,
		TotalCents: totalCents,
		Status:     model.OrderStatusCompleted,
		CreatedAt:  time.Now(),
	}

	var unfulfilled []int64
	for _, e := range entries {
		l, ok := r.listings[e.ListingID]
		if !ok || !l.IsAvailable {
			unfulfilled = append(unfulfilled, e.ListingID)
			continue
		}

		l.IsAvailable = false

		r.nextLineID++
		order.Lines = append(order.Lines, model.OrderLine{
			ID:         r.nextLineID,
			OrderID:    order.ID,
			ListingID:  l.ID,
			PriceCents: l.PriceCents,
		})
	}

	for _, e := range entries {
		delete(r.cartEntries, e.ID)
	}

	r.orders[order.ID] = order

	cp := r.copyOrder(order)
	return cp, unfulfilled, nil
}

func (r *MemoryRepository) copyOrder(o *model.Order) *model.Order {
	cp := *o
	cp.Lines = make([]model.OrderLine, len(o.Lines))
	for i, line := range o.Lines {
		cp.Lines[i] = line
		if l, ok := r.listings[line.ListingID]; ok {
			lcp := *l
			cp.Lines[i].Listing = &lcp
		}
	}
	return &cp
}

// GetOrdersByBuyer возвращает заказы покупателя со строками и данными объявлений,
// новые заказы первыми.
func (r *MemoryRepository) GetOrdersByBuyer(_ context.Context, buyerID int64) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Order
	for _, o := range r.orders {
		if o.BuyerID == buyerID {
			res = append(res, *r.copyOrder(o))
		}
	}

	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })

	return res, nil
}

// CreateMessage сохраняет новое сообщение.
func (r *MemoryRepository) CreateMessage(_ context.Context, senderID, receiverID int64, listingID *int64, content string) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextMessageID++
	m := &model.Message{
		ID:         r.nextMessageID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		ListingID:  listingID,
		Content:    content,
		CreatedAt:  time.Now(),
	}
	r.messages[m.ID] = m

	cp := *m
	return &cp, nil
}

// GetMessageThread возвращает переписку двух пользователей по возрастанию времени отправки.
// Результат не зависит от порядка аргументов.
func (r *MemoryRepository) GetMessageThread(_ context.Context, userA, userB int64) ([]model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Message
	for _, m := range r.messages {
		if (m.SenderID == userA && m.ReceiverID == userB) || (m.SenderID == userB && m.ReceiverID == userA) {
			res = append(res, *m)
		}
	}

	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})

	return res, nil
}
