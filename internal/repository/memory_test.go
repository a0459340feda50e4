package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/mmeshcher/bookmarket-system/internal/model"
)

func newTestRepo(t *testing.T) (*MemoryRepository, int64, int64) {
	t.Helper()

	repo := NewMemoryRepository()
	ctx := context.Background()

	buyerID, err := repo.CreateUser(ctx, "buyer@example.com", []byte("hash"), "Buyer", model.RoleBuyer)
	if err != nil {
		t.Fatalf("create buyer: %v", err)
	}
	sellerID, err := repo.CreateUser(ctx, "seller@example.com", []byte("hash"), "Seller", model.RoleSeller)
	if err != nil {
		t.Fatalf("create seller: %v", err)
	}

	return repo, buyerID, sellerID
}

func addListing(t *testing.T, repo *MemoryRepository, sellerID int64, title string, priceCents int64) int64 {
	t.Helper()

	id, err := repo.CreateListing(context.Background(), &model.Listing{
		Title:      title,
		Author:     "Author",
		PriceCents: priceCents,
		Condition:  model.ConditionGood,
		Category:   "fiction",
		SellerID:   sellerID,
	})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return id
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.CreateUser(ctx, "buyer@example.com", []byte("other"), "Other", model.RoleBuyer)
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	// Первый пользователь остаётся доступным по email.
	u, err := repo.GetUserByEmail(ctx, "buyer@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Name != "Buyer" {
		t.Fatalf("Name = %q, want Buyer", u.Name)
	}
}

func TestCreateListing_RoundTrip(t *testing.T) {
	repo, _, sellerID := newTestRepo(t)
	ctx := context.Background()

	in := &model.Listing{
		Title:       "Мастер и Маргарита",
		Author:      "Булгаков",
		Description: "Хорошее состояние",
		PriceCents:  1250,
		Condition:   model.ConditionVeryGood,
		Category:    "classics",
		SellerID:    sellerID,
	}
	id, err := repo.CreateListing(ctx, in)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}

	got, err := repo.GetListingByID(ctx, id)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}

	if got.Title != in.Title || got.Author != in.Author || got.Description != in.Description ||
		got.PriceCents != in.PriceCents || got.Condition != in.Condition || got.Category != in.Category {
		t.Fatalf("listing fields changed on round trip: %+v", got)
	}
	if !got.IsAvailable {
		t.Fatal("new listing must be available")
	}
	if got.ID == 0 || got.CreatedAt.IsZero() {
		t.Fatal("id and created_at must be assigned by the store")
	}
}

func TestFindListings_Filters(t *testing.T) {
	repo, _, sellerID := newTestRepo(t)
	ctx := context.Background()

	first := addListing(t, repo, sellerID, "Go in Action", 1000)
	addListing(t, repo, sellerID, "Rust in Action", 2000)

	res, err := repo.FindListings(ctx, model.ListingFilter{Search: "go in"})
	if err != nil {
		t.Fatalf("find listings: %v", err)
	}
	if len(res) != 1 || res[0].ID != first {
		t.Fatalf("search filter: got %+v", res)
	}

	res, err = repo.FindListings(ctx, model.ListingFilter{Category: "fiction"})
	if err != nil {
		t.Fatalf("find listings: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("category filter: got %d listings, want 2", len(res))
	}
	if res[0].ID >= res[1].ID {
		t.Fatal("listings must come back in insertion order")
	}

	res, err = repo.FindListings(ctx, model.ListingFilter{Condition: "like_new"})
	if err != nil {
		t.Fatalf("find listings: %v", err)
	}
	if len(res) != 0 {
		t.Fatalf("condition filter: got %+v, want none", res)
	}
}

func TestFindListings_SearchIsLiteral(t *testing.T) {
	repo, _, sellerID := newTestRepo(t)
	ctx := context.Background()

	percent := addListing(t, repo, sellerID, "100% хлопок: переплёт", 1000)
	addListing(t, repo, sellerID, "1000 хлопковых переплётов", 2000)

	// Метасимволы LIKE в поисковой строке сопоставляются буквально.
	res, err := repo.FindListings(ctx, model.ListingFilter{Search: "100% хлопок"})
	if err != nil {
		t.Fatalf("find listings: %v", err)
	}
	if len(res) != 1 || res[0].ID != percent {
		t.Fatalf("literal search: got %+v, want only the %%-titled listing", res)
	}

	res, err = repo.FindListings(ctx, model.ListingFilter{Search: "100_ хлопок"})
	if err != nil {
		t.Fatalf("find listings: %v", err)
	}
	if len(res) != 0 {
		t.Fatalf("underscore must not act as a wildcard: got %+v", res)
	}
}

func TestUpdateListing_PartialMerge(t *testing.T) {
	repo, _, sellerID := newTestRepo(t)
	ctx := context.Background()

	id := addListing(t, repo, sellerID, "Original", 1000)

	newPrice := int64(1500)
	got, err := repo.UpdateListing(ctx, id, model.ListingPatch{PriceCents: &newPrice})
	if err != nil {
		t.Fatalf("update listing: %v", err)
	}

	if got.PriceCents != 1500 {
		t.Fatalf("PriceCents = %d, want 1500", got.PriceCents)
	}
	if got.Title != "Original" {
		t.Fatalf("Title = %q, untouched fields must survive the merge", got.Title)
	}

	_, err = repo.UpdateListing(ctx, 9999, model.ListingPatch{PriceCents: &newPrice})
	if !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
}

func TestDeleteListing_Idempotent(t *testing.T) {
	repo, _, sellerID := newTestRepo(t)
	ctx := context.Background()

	id := addListing(t, repo, sellerID, "To delete", 1000)

	removed, err := repo.DeleteListing(ctx, id)
	if err != nil || !removed {
		t.Fatalf("first delete: removed=%v err=%v", removed, err)
	}

	removed, err = repo.DeleteListing(ctx, id)
	if err != nil || removed {
		t.Fatalf("second delete: removed=%v err=%v", removed, err)
	}
}

func TestDeleteListing_SoldRejected(t *testing.T) {
	repo, buyerID, sellerID := newTestRepo(t)
	ctx := context.Background()

	listingID := addListing(t, repo, sellerID, "Sold book", 1000)
	if _, _, err := repo.AddCartEntry(ctx, buyerID, listingID); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	if _, _, err := repo.CreateOrder(ctx, buyerID, 1000); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	removed, err := repo.DeleteListing(ctx, listingID)
	if !errors.Is(err, ErrListingSold) {
		t.Fatalf("expected ErrListingSold, got removed=%v err=%v", removed, err)
	}

	// История заказа остаётся целой: объявление на месте.
	if _, err := repo.GetListingByID(ctx, listingID); err != nil {
		t.Fatalf("sold listing must survive a delete attempt: %v", err)
	}
	orders, err := repo.GetOrdersByBuyer(ctx, buyerID)
	if err != nil {
		t.Fatalf("get orders: %v", err)
	}
	if len(orders) != 1 || orders[0].Lines[0].Listing == nil {
		t.Fatalf("order history lost its listing snapshot: %+v", orders)
	}
}

func TestAddCartEntry_Dedup(t *testing.T) {
	repo, buyerID, sellerID := newTestRepo(t)
	ctx := context.Background()

	listingID := addListing(t, repo, sellerID, "Book", 1000)

	first, created, err := repo.AddCartEntry(ctx, buyerID, listingID)
	if err != nil || !created {
		t.Fatalf("first add: created=%v err=%v", created, err)
	}

	second, created, err := repo.AddCartEntry(ctx, buyerID, listingID)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if created {
		t.Fatal("duplicate add must not create a second entry")
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate add returned entry %d, want existing %d", second.ID, first.ID)
	}

	cart, err := repo.GetCartByBuyer(ctx, buyerID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart) != 1 {
		t.Fatalf("cart size = %d, want 1", len(cart))
	}
}

func TestCreateOrder_HappyPath(t *testing.T) {
	repo, buyerID, sellerID := newTestRepo(t)
	ctx := context.Background()

	// Сценарий из приёмочных требований: 12.50 + 8.00 + 3.99 доставка = 24.49.
	l7 := addListing(t, repo, sellerID, "Первая книга", 1250)
	l9 := addListing(t, repo, sellerID, "Вторая книга", 800)

	for _, id := range []int64{l7, l9} {
		if _, _, err := repo.AddCartEntry(ctx, buyerID, id); err != nil {
			t.Fatalf("add to cart: %v", err)
		}
	}

	order, unfulfilled, err := repo.CreateOrder(ctx, buyerID, 2449)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if len(unfulfilled) != 0 {
		t.Fatalf("unfulfilled = %v, want none", unfulfilled)
	}

	if order.TotalCents != 2449 {
		t.Fatalf("TotalCents = %d, want caller-supplied 2449", order.TotalCents)
	}
	if order.Status != model.OrderStatusCompleted {
		t.Fatalf("Status = %q, want completed", order.Status)
	}
	if len(order.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(order.Lines))
	}
	if order.Lines[0].PriceCents != 1250 || order.Lines[1].PriceCents != 800 {
		t.Fatalf("captured prices = %d, %d; want 1250, 800", order.Lines[0].PriceCents, order.Lines[1].PriceCents)
	}

	// Проданные объявления выпадают из выдачи доступных.
	for _, id := range []int64{l7, l9} {
		l, err := repo.GetListingByID(ctx, id)
		if err != nil {
			t.Fatalf("get listing: %v", err)
		}
		if l.IsAvailable {
			t.Fatalf("listing %d still available after checkout", id)
		}
	}
	available, err := repo.FindListings(ctx, model.ListingFilter{})
	if err != nil {
		t.Fatalf("find listings: %v", err)
	}
	if len(available) != 0 {
		t.Fatalf("available listings = %d, want 0", len(available))
	}

	// Корзина пуста после оформления.
	cart, err := repo.GetCartByBuyer(ctx, buyerID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart) != 0 {
		t.Fatalf("cart size = %d after checkout, want 0", len(cart))
	}
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	repo, buyerID, _ := newTestRepo(t)
	ctx := context.Background()

	_, _, err := repo.CreateOrder(ctx, buyerID, 100)
	if !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("expected ErrCartEmpty, got %v", err)
	}

	orders, err := repo.GetOrdersByBuyer(ctx, buyerID)
	if err != nil {
		t.Fatalf("get orders: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("orders = %d after rejected checkout, want 0", len(orders))
	}
}

func TestCreateOrder_AlreadySoldListingUnfulfilled(t *testing.T) {
	repo, buyerID, sellerID := newTestRepo(t)
	ctx := context.Background()

	otherBuyer, err := repo.CreateUser(ctx, "other@example.com", []byte("hash"), "Other", model.RoleBuyer)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	contested := addListing(t, repo, sellerID, "Contested", 1000)
	regular := addListing(t, repo, sellerID, "Regular", 500)

	for _, buyer := range []int64{buyerID, otherBuyer} {
		if _, _, err := repo.AddCartEntry(ctx, buyer, contested); err != nil {
			t.Fatalf("add to cart: %v", err)
		}
	}
	if _, _, err := repo.AddCartEntry(ctx, otherBuyer, regular); err != nil {
		t.Fatalf("add to cart: %v", err)
	}

	// Первый покупатель успевает раньше.
	first, unfulfilled, err := repo.CreateOrder(ctx, buyerID, 1000)
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	if len(first.Lines) != 1 || len(unfulfilled) != 0 {
		t.Fatalf("first checkout: lines=%d unfulfilled=%v", len(first.Lines), unfulfilled)
	}

	// Второй получает объявление в списке unfulfilled, а не вторую продажу.
	second, unfulfilled, err := repo.CreateOrder(ctx, otherBuyer, 1500)
	if err != nil {
		t.Fatalf("second checkout: %v", err)
	}
	if len(second.Lines) != 1 || second.Lines[0].ListingID != regular {
		t.Fatalf("second checkout lines: %+v", second.Lines)
	}
	if len(unfulfilled) != 1 || unfulfilled[0] != contested {
		t.Fatalf("unfulfilled = %v, want [%d]", unfulfilled, contested)
	}
}

func TestCreateOrder_VanishedListingUnfulfilled(t *testing.T) {
	repo, buyerID, sellerID := newTestRepo(t)
	ctx := context.Background()

	keep := addListing(t, repo, sellerID, "Keep", 1000)
	vanish := addListing(t, repo, sellerID, "Vanish", 500)

	for _, id := range []int64{keep, vanish} {
		if _, _, err := repo.AddCartEntry(ctx, buyerID, id); err != nil {
			t.Fatalf("add to cart: %v", err)
		}
	}

	// Продавец удаляет объявление между добавлением в корзину и оформлением.
	// Позиция корзины уходит вместе с объявлением, заказ состоит из остатка.
	if _, err := repo.DeleteListing(ctx, vanish); err != nil {
		t.Fatalf("delete listing: %v", err)
	}

	order, _, err := repo.CreateOrder(ctx, buyerID, 1000)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if len(order.Lines) != 1 || order.Lines[0].ListingID != keep {
		t.Fatalf("lines = %+v, want single line for %d", order.Lines, keep)
	}
}

func TestOrderLine_PriceCapturedAtPurchase(t *testing.T) {
	repo, buyerID, sellerID := newTestRepo(t)
	ctx := context.Background()

	listingID := addListing(t, repo, sellerID, "Book", 1250)
	if _, _, err := repo.AddCartEntry(ctx, buyerID, listingID); err != nil {
		t.Fatalf("add to cart: %v", err)
	}

	order, _, err := repo.CreateOrder(ctx, buyerID, 1250)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	newPrice := int64(9999)
	if _, err := repo.UpdateListing(ctx, listingID, model.ListingPatch{PriceCents: &newPrice}); err != nil {
		t.Fatalf("update listing: %v", err)
	}

	orders, err := repo.GetOrdersByBuyer(ctx, buyerID)
	if err != nil {
		t.Fatalf("get orders: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != order.ID {
		t.Fatalf("orders = %+v", orders)
	}
	if orders[0].Lines[0].PriceCents != 1250 {
		t.Fatalf("captured price = %d, must not follow later edits", orders[0].Lines[0].PriceCents)
	}
}

func TestGetMessageThread_SymmetricAndSorted(t *testing.T) {
	repo, buyerID, sellerID := newTestRepo(t)
	ctx := context.Background()

	texts := []string{"Здравствуйте, книга ещё в продаже?", "Да, в продаже.", "Беру!"}
	senders := []int64{buyerID, sellerID, buyerID}
	receivers := []int64{sellerID, buyerID, sellerID}

	for i, text := range texts {
		if _, err := repo.CreateMessage(ctx, senders[i], receivers[i], nil, text); err != nil {
			t.Fatalf("create message: %v", err)
		}
	}

	fromBuyer, err := repo.GetMessageThread(ctx, buyerID, sellerID)
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	fromSeller, err := repo.GetMessageThread(ctx, sellerID, buyerID)
	if err != nil {
		t.Fatalf("thread: %v", err)
	}

	if len(fromBuyer) != 3 || len(fromSeller) != 3 {
		t.Fatalf("thread sizes = %d, %d; want 3", len(fromBuyer), len(fromSeller))
	}
	for i := range fromBuyer {
		if fromBuyer[i].ID != fromSeller[i].ID {
			t.Fatal("thread must be identical regardless of caller order")
		}
		if fromBuyer[i].Content != texts[i] {
			t.Fatalf("message %d = %q, want %q (ascending by time)", i, fromBuyer[i].Content, texts[i])
		}
	}
}
