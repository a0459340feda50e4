// Package handler содержит HTTP-обработчики API маркетплейса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/bookmarket-system/internal/metrics"
	"github.com/mmeshcher/bookmarket-system/internal/middleware"
	"github.com/mmeshcher/bookmarket-system/internal/model"
	"github.com/mmeshcher/bookmarket-system/internal/repository"
	"github.com/mmeshcher/bookmarket-system/internal/service"
	"github.com/mmeshcher/bookmarket-system/internal/validation"
)

const maxImageSize = 10 << 20

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, email, password, name string, role model.Role) (*model.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	CreateListing(ctx context.Context, actor service.Actor, l *model.Listing) (*model.Listing, error)
	SaveListingImage(data []byte, originalName string) (string, error)
	FindListings(ctx context.Context, filter model.ListingFilter) ([]model.Listing, error)
	GetListingByID(ctx context.Context, id int64) (*model.Listing, error)
	UpdateListing(ctx context.Context, actor service.Actor, id int64, patch model.ListingPatch) (*model.Listing, error)
	DeleteListing(ctx context.Context, actor service.Actor, id int64) error
	GetCart(ctx context.Context, buyerID int64) ([]model.CartItem, error)
	AddToCart(ctx context.Context, actor service.Actor, listingID int64) (*model.CartEntry, bool, error)
	RemoveFromCart(ctx context.Context, buyerID, listingID int64) error
	Checkout(ctx context.Context, buyerID int64, total string) (*model.Order, []int64, error)
	GetOrdersByBuyer(ctx context.Context, buyerID int64) ([]model.Order, error)
	SendMessage(ctx context.Context, senderID, receiverID int64, listingID *int64, content string) (*model.Message, error)
	GetMessageThread(ctx context.Context, userID, otherUserID int64) ([]model.Message, error)
}

// Handler реализует HTTP-обработчики API маркетплейса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	rateLimiter    *middleware.RateLimiter
	collector      *metrics.Collector
	metricsHandler http.Handler
	uploadDir      string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// rateLimiter, collector и metricsHandler могут быть nil — соответствующие
// возможности при этом отключаются.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware,
	limiter *middleware.RateLimiter, collector *metrics.Collector, metricsHandler http.Handler,
	uploadDir string,
) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		rateLimiter:    limiter,
		collector:      collector,
		metricsHandler: metricsHandler,
		uploadDir:      uploadDir,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type userResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

type listingResponse struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Condition   string `json:"condition"`
	Category    string `json:"category"`
	ImageURL    string `json:"imageUrl,omitempty"`
	SellerID    int64  `json:"sellerId"`
	IsAvailable bool   `json:"isAvailable"`
	CreatedAt   string `json:"createdAt"`
}

func toListingResponse(l *model.Listing) listingResponse {
	return listingResponse{
		ID:          l.ID,
		Title:       l.Title,
		Author:      l.Author,
		Description: l.Description,
		Price:       model.FormatCents(l.PriceCents),
		Condition:   string(l.Condition),
		Category:    l.Category,
		ImageURL:    l.ImageURL,
		SellerID:    l.SellerID,
		IsAvailable: l.IsAvailable,
		CreatedAt:   l.CreatedAt.Format(time.RFC3339),
	}
}

type authResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	switch {
	case !validation.IsValidEmail(req.Email):
		writeError(w, http.StatusBadRequest, "email: invalid format")
		return
	case !validation.IsValidPassword(req.Password):
		writeError(w, http.StatusBadRequest, "password: too short")
		return
	case req.Name == "":
		writeError(w, http.StatusBadRequest, "name: required")
		return
	case !validation.IsValidRole(req.Role):
		writeError(w, http.StatusBadRequest, "role: must be buyer or seller")
		return
	}

	user, err := h.service.RegisterUser(r.Context(), req.Email, req.Password, req.Name, model.Role(req.Role))
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := h.authMiddleware.IssueToken(user)
	if err != nil {
		h.logger.Error("issue token error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{User: toUserResponse(user), Token: token})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию пользователя и выпуск bearer-токена.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := h.authMiddleware.IssueToken(user)
	if err != nil {
		h.logger.Error("issue token error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{User: toUserResponse(user), Token: token})
}

// GetUser возвращает публичный профиль пользователя.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id: must be an integer")
		return
	}

	user, err := h.service.GetUserByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("get user error", zap.Error(err), zap.Int64("userID", id))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Публичный профиль: без email и служебных полей.
	writeJSON(w, http.StatusOK, map[string]any{
		"id":   user.ID,
		"name": user.Name,
		"role": string(user.Role),
	})
}

// ListListings возвращает доступные объявления с учётом фильтров запроса.
func (h *Handler) ListListings(w http.ResponseWriter, r *http.Request) {
	filter := model.ListingFilter{
		Category:  r.URL.Query().Get("category"),
		Condition: r.URL.Query().Get("condition"),
		Search:    r.URL.Query().Get("search"),
	}

	listings, err := h.service.FindListings(r.Context(), filter)
	if err != nil {
		h.logger.Error("list listings error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]listingResponse, 0, len(listings))
	for i := range listings {
		resp = append(resp, toListingResponse(&listings[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetListing возвращает объявление по идентификатору.
func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id: must be an integer")
		return
	}

	l, err := h.service.GetListingByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrListingNotFound) {
			writeError(w, http.StatusNotFound, "listing not found")
			return
		}
		h.logger.Error("get listing error", zap.Error(err), zap.Int64("listingID", id))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toListingResponse(l))
}

// CreateListing создаёт объявление (multipart-форма с необязательной обложкой).
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		writeError(w, http.StatusBadRequest, "malformed multipart form")
		return
	}

	title := r.FormValue("title")
	author := r.FormValue("author")
	price := r.FormValue("price")
	condition := r.FormValue("condition")

	switch {
	case title == "":
		writeError(w, http.StatusBadRequest, "title: required")
		return
	case author == "":
		writeError(w, http.StatusBadRequest, "author: required")
		return
	case !validation.IsValidPrice(price):
		writeError(w, http.StatusBadRequest, "price: invalid amount")
		return
	case !validation.IsValidCondition(condition):
		writeError(w, http.StatusBadRequest, "condition: unknown value")
		return
	}

	priceCents, _ := model.ParseCents(price)
	l := &model.Listing{
		Title:       title,
		Author:      author,
		Description: r.FormValue("description"),
		PriceCents:  priceCents,
		Condition:   model.Condition(condition),
		Category:    r.FormValue("category"),
	}

	if file, header, err := r.FormFile("image"); err == nil {
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxImageSize))
		if err != nil {
			writeError(w, http.StatusBadRequest, "image: unreadable")
			return
		}

		imageURL, err := h.service.SaveListingImage(data, header.Filename)
		if err != nil {
			if errors.Is(err, service.ErrUnsupportedImage) {
				writeError(w, http.StatusBadRequest, "image: unsupported format")
				return
			}
			h.logger.Error("save image error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		l.ImageURL = imageURL
	}

	created, err := h.service.CreateListing(r.Context(), actorOf(identity), l)
	if err != nil {
		if errors.Is(err, service.ErrForbidden) {
			writeError(w, http.StatusForbidden, "sellers only")
			return
		}
		h.logger.Error("create listing error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, toListingResponse(created))
}

type updateListingRequest struct {
	Title       *string          `json:"title"`
	Author      *string          `json:"author"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Condition   *string          `json:"condition"`
	Category    *string          `json:"category"`
}

// UpdateListing применяет частичное обновление объявления (только владелец).
func (h *Handler) UpdateListing(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id: must be an integer")
		return
	}

	var req updateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	patch := model.ListingPatch{
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		Category:    req.Category,
	}
	if req.Price != nil {
		cents, err := model.ParseCents(req.Price.String())
		if err != nil {
			writeError(w, http.StatusBadRequest, "price: invalid amount")
			return
		}
		patch.PriceCents = &cents
	}
	if req.Condition != nil {
		if !validation.IsValidCondition(*req.Condition) {
			writeError(w, http.StatusBadRequest, "condition: unknown value")
			return
		}
		c := model.Condition(*req.Condition)
		patch.Condition = &c
	}

	updated, err := h.service.UpdateListing(r.Context(), actorOf(identity), id, patch)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrListingNotFound):
			writeError(w, http.StatusNotFound, "listing not found")
		case errors.Is(err, service.ErrForbidden):
			writeError(w, http.StatusForbidden, "not the owner")
		default:
			h.logger.Error("update listing error", zap.Error(err), zap.Int64("listingID", id))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, toListingResponse(updated))
}

// DeleteListing удаляет объявление (только владелец).
func (h *Handler) DeleteListing(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id: must be an integer")
		return
	}

	if err := h.service.DeleteListing(r.Context(), actorOf(identity), id); err != nil {
		switch {
		case errors.Is(err, repository.ErrListingNotFound):
			writeError(w, http.StatusNotFound, "listing not found")
		case errors.Is(err, repository.ErrListingSold):
			writeError(w, http.StatusConflict, "listing already sold")
		case errors.Is(err, service.ErrForbidden):
			writeError(w, http.StatusForbidden, "not the owner")
		default:
			h.logger.Error("delete listing error", zap.Error(err), zap.Int64("listingID", id))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type cartItemResponse struct {
	ID        int64           `json:"id"`
	ListingID int64           `json:"listingId"`
	AddedAt   string          `json:"addedAt"`
	Listing   listingResponse `json:"listing"`
}

// GetCart возвращает корзину текущего пользователя с данными объявлений.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	items, err := h.service.GetCart(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("get cart error", zap.Error(err), zap.Int64("userID", identity.UserID))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]cartItemResponse, 0, len(items))
	for i := range items {
		resp = append(resp, cartItemResponse{
			ID:        items[i].Entry.ID,
			ListingID: items[i].Entry.ListingID,
			AddedAt:   items[i].Entry.CreatedAt.Format(time.RFC3339),
			Listing:   toListingResponse(&items[i].Listing),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type addToCartRequest struct {
	ListingID int64 `json:"listingId"`
}

// AddToCart добавляет объявление в корзину текущего пользователя.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.ListingID == 0 {
		writeError(w, http.StatusBadRequest, "listingId: required")
		return
	}

	entry, created, err := h.service.AddToCart(r.Context(), actorOf(identity), req.ListingID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrListingNotFound):
			writeError(w, http.StatusNotFound, "listing not found")
		case errors.Is(err, service.ErrListingUnavailable):
			writeError(w, http.StatusConflict, "listing already sold")
		case errors.Is(err, service.ErrOwnListing):
			writeError(w, http.StatusBadRequest, "cannot add own listing to cart")
		default:
			h.logger.Error("add to cart error", zap.Error(err), zap.Int64("listingID", req.ListingID))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}

	writeJSON(w, status, cartItemResponse{
		ID:        entry.ID,
		ListingID: entry.ListingID,
		AddedAt:   entry.CreatedAt.Format(time.RFC3339),
	})
}

// RemoveFromCart удаляет объявление из корзины текущего пользователя. Идемпотентно.
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	listingID, err := strconv.ParseInt(chi.URLParam(r, "listingId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "listingId: must be an integer")
		return
	}

	if err := h.service.RemoveFromCart(r.Context(), identity.UserID, listingID); err != nil {
		h.logger.Error("remove from cart error", zap.Error(err), zap.Int64("listingID", listingID))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type orderLineResponse struct {
	ID        int64            `json:"id"`
	ListingID int64            `json:"listingId"`
	Price     string           `json:"price"`
	Listing   *listingResponse `json:"listing,omitempty"`
}

type orderResponse struct {
	ID        int64               `json:"id"`
	Total     string              `json:"total"`
	Status    string              `json:"status"`
	CreatedAt string              `json:"createdAt"`
	Items     []orderLineResponse `json:"items"`
}

func toOrderResponse(o *model.Order) orderResponse {
	resp := orderResponse{
		ID:        o.ID,
		Total:     model.FormatCents(o.TotalCents),
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
		Items:     make([]orderLineResponse, 0, len(o.Lines)),
	}
	for i := range o.Lines {
		line := orderLineResponse{
			ID:        o.Lines[i].ID,
			ListingID: o.Lines[i].ListingID,
			Price:     model.FormatCents(o.Lines[i].PriceCents),
		}
		if o.Lines[i].Listing != nil {
			lr := toListingResponse(o.Lines[i].Listing)
			line.Listing = &lr
		}
		resp.Items = append(resp.Items, line)
	}
	return resp
}

type checkoutRequest struct {
	Total *decimal.Decimal `json:"total"`
}

type checkoutResponse struct {
	Order                 orderResponse `json:"order"`
	UnfulfilledListingIDs []int64       `json:"unfulfilledListingIds"`
}

// CreateOrder оформляет заказ из текущей корзины пользователя.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Total == nil {
		writeError(w, http.StatusBadRequest, "total: required")
		return
	}

	order, unfulfilled, err := h.service.Checkout(r.Context(), identity.UserID, req.Total.String())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCartEmpty):
			writeError(w, http.StatusBadRequest, "nothing to purchase: cart is empty")
		case errors.Is(err, model.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "total: invalid amount")
		default:
			h.logger.Error("checkout error", zap.Error(err), zap.Int64("userID", identity.UserID))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	if h.collector != nil {
		h.collector.RecordOrderCreated()
	}

	if unfulfilled == nil {
		unfulfilled = []int64{}
	}

	writeJSON(w, http.StatusCreated, checkoutResponse{
		Order:                 toOrderResponse(order),
		UnfulfilledListingIDs: unfulfilled,
	})
}

// GetOrders возвращает заказы текущего пользователя со строками и данными объявлений.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	orders, err := h.service.GetOrdersByBuyer(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("get orders error", zap.Error(err), zap.Int64("userID", identity.UserID))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

type messageResponse struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"senderId"`
	ReceiverID int64  `json:"receiverId"`
	ListingID  *int64 `json:"listingId,omitempty"`
	Content    string `json:"content"`
	CreatedAt  string `json:"createdAt"`
}

func toMessageResponse(m *model.Message) messageResponse {
	return messageResponse{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		ListingID:  m.ListingID,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt.Format(time.RFC3339),
	}
}

// GetMessageThread возвращает переписку с указанным пользователем
// по возрастанию времени отправки.
func (h *Handler) GetMessageThread(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	otherID, err := strconv.ParseInt(chi.URLParam(r, "otherUserId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "otherUserId: must be an integer")
		return
	}

	messages, err := h.service.GetMessageThread(r.Context(), identity.UserID, otherID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("get thread error", zap.Error(err), zap.Int64("otherUserID", otherID))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]messageResponse, 0, len(messages))
	for i := range messages {
		resp = append(resp, toMessageResponse(&messages[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

type sendMessageRequest struct {
	ReceiverID int64  `json:"receiverId"`
	ListingID  *int64 `json:"listingId"`
	Content    string `json:"content"`
}

// SendMessage отправляет сообщение другому пользователю.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if req.ReceiverID == 0 {
		writeError(w, http.StatusBadRequest, "receiverId: required")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content: required")
		return
	}

	m, err := h.service.SendMessage(r.Context(), identity.UserID, req.ReceiverID, req.ListingID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSelfMessage):
			writeError(w, http.StatusBadRequest, "cannot message yourself")
		case errors.Is(err, repository.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "receiver not found")
		case errors.Is(err, repository.ErrListingNotFound):
			writeError(w, http.StatusNotFound, "listing not found")
		default:
			h.logger.Error("send message error", zap.Error(err), zap.Int64("receiverID", req.ReceiverID))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toMessageResponse(m))
}

func actorOf(identity *middleware.Identity) service.Actor {
	return service.Actor{
		UserID: identity.UserID,
		Role:   identity.Role,
	}
}
