package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/bookmarket-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи имеют смысл для Serialization Failure и Deadlock;
		// переподключениями занимается сам pgxpool.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, email string, passwordHash []byte, name string, role model.Role) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, name, role) VALUES ($1, $2, $3, $4) RETURNING id`,
		email, passwordHash, name, string(role),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, name, role, created_at FROM users WHERE email = $1`,
		email,
	)
	return scanUser(row)
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, name, role, created_at FROM users WHERE id = $1`,
		id,
	)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.Role(role)
	return &u, nil
}

const listingColumns = `id, title, author, description, price_cents, condition, category, image_url, seller_id, is_available, created_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLikePattern экранирует метасимволы LIKE, чтобы поисковая строка
// сопоставлялась буквально, как подстрока.
func escapeLikePattern(s string) string {
	return likeEscaper.Replace(s)
}

// CreateListing сохраняет новое объявление и возвращает его идентификатор.
func (r *PostgresRepository) CreateListing(ctx context.Context, l *model.Listing) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO listings (title, author, description, price_cents, condition, category, image_url, seller_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		l.Title, l.Author, l.Description, l.PriceCents, string(l.Condition), l.Category, l.ImageURL, l.SellerID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create listing: %w", err)
	}
	return id, nil
}

// GetListingByID возвращает объявление по идентификатору.
func (r *PostgresRepository) GetListingByID(ctx context.Context, id int64) (*model.Listing, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`,
		id,
	)
	l, err := scanListing(row)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func scanListing(row pgx.Row) (*model.Listing, error) {
	var l model.Listing
	var condition string
	err := row.Scan(&l.ID, &l.Title, &l.Author, &l.Description, &l.PriceCents, &condition,
		&l.Category, &l.ImageURL, &l.SellerID, &l.IsAvailable, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("scan listing: %w", err)
	}
	l.Condition = model.Condition(condition)
	return &l, nil
}

// FindListings возвращает доступные объявления, удовлетворяющие фильтру, в порядке добавления.
func (r *PostgresRepository) FindListings(ctx context.Context, filter model.ListingFilter) ([]model.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE is_available = TRUE`
	args := []any{}

	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if filter.Condition != "" {
		args = append(args, filter.Condition)
		query += fmt.Sprintf(" AND condition = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLikePattern(filter.Search)+"%")
		n := len(args)
		query += fmt.Sprintf(" AND (title ILIKE $%d OR author ILIKE $%d OR description ILIKE $%d)", n, n, n)
	}

	query += " ORDER BY id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select listings: %w", err)
	}
	defer rows.Close()

	var res []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateListing применяет частичное обновление и возвращает обновлённое объявление.
func (r *PostgresRepository) UpdateListing(ctx context.Context, id int64, patch model.ListingPatch) (*model.Listing, error) {
	var condition *string
	if patch.Condition != nil {
		s := string(*patch.Condition)
		condition = &s
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE listings SET
		    title = COALESCE($2, title),
		    author = COALESCE($3, author),
		    description = COALESCE($4, description),
		    price_cents = COALESCE($5, price_cents),
		    condition = COALESCE($6, condition),
		    category = COALESCE($7, category),
		    image_url = COALESCE($8, image_url)
		 WHERE id = $1
		 RETURNING `+listingColumns,
		id, patch.Title, patch.Author, patch.Description, patch.PriceCents, condition, patch.Category, patch.ImageURL,
	)

	return scanListing(row)
}

// DeleteListing удаляет объявление. Возвращает признак того, что запись существовала.
// Проданное объявление (на него ссылается строка заказа) удалить нельзя: ErrListingSold.
func (r *PostgresRepository) DeleteListing(ctx context.Context, id int64) (bool, error) {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return false, fmt.Errorf("%w: %d", ErrListingSold, id)
		}
		return false, fmt.Errorf("delete listing: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// AddCartEntry добавляет объявление в корзину покупателя.
// Повторное добавление того же объявления возвращает существующую позицию (created = false).
func (r *PostgresRepository) AddCartEntry(ctx context.Context, buyerID, listingID int64) (*model.CartEntry, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`INSERT INTO cart_entries (buyer_id, listing_id) VALUES ($1, $2)
		 ON CONFLICT (buyer_id, listing_id) DO NOTHING`,
		buyerID, listingID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert cart entry: %w", err)
	}

	created := cmdTag.RowsAffected() == 1

	var e model.CartEntry
	err = tx.QueryRow(ctx,
		`SELECT id, buyer_id, listing_id, created_at FROM cart_entries WHERE buyer_id = $1 AND listing_id = $2`,
		buyerID, listingID,
	).Scan(&e.ID, &e.BuyerID, &e.ListingID, &e.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("select cart entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit tx: %w", err)
	}

	return &e, created, nil
}

// GetCartByBuyer возвращает корзину покупателя вместе с данными объявлений.
func (r *PostgresRepository) GetCartByBuyer(ctx context.Context, buyerID int64) ([]model.CartItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.buyer_id, c.listing_id, c.created_at,
		        l.id, l.title, l.author, l.description, l.price_cents, l.condition,
		        l.category, l.image_url, l.seller_id, l.is_available, l.created_at
		 FROM cart_entries c
		 JOIN listings l ON l.id = c.listing_id
		 WHERE c.buyer_id = $1
		 ORDER BY c.id`,
		buyerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cart: %w", err)
	}
	defer rows.Close()

	var res []model.CartItem
	for rows.Next() {
		var item model.CartItem
		var condition string
		err := rows.Scan(
			&item.Entry.ID, &item.Entry.BuyerID, &item.Entry.ListingID, &item.Entry.CreatedAt,
			&item.Listing.ID, &item.Listing.Title, &item.Listing.Author, &item.Listing.Description,
			&item.Listing.PriceCents, &condition, &item.Listing.Category, &item.Listing.ImageURL,
			&item.Listing.SellerID, &item.Listing.IsAvailable, &item.Listing.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		item.Listing.Condition = model.Condition(condition)
		res = append(res, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// RemoveCartEntry удаляет объявление из корзины покупателя. Операция идемпотентна.
func (r *PostgresRepository) RemoveCartEntry(ctx context.Context, buyerID, listingID int64) (bool, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM cart_entries WHERE buyer_id = $1 AND listing_id = $2`,
		buyerID, listingID,
	)
	if err != nil {
		return false, fmt.Errorf("delete cart entry: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// CreateOrder оформляет заказ из текущей корзины покупателя в одной транзакции.
// Захват объявления выполняется условным обновлением флага is_available:
// уже проданные или исчезнувшие объявления попадают в список unfulfilled,
// а не в строки заказа. Корзина очищается в той же транзакции.
func (r *PostgresRepository) CreateOrder(ctx context.Context, buyerID, totalCents int64) (*model.Order, []int64, error) {
	var order *model.Order
	var unfulfilled []int64

	err := r.withRetry(ctx, func() error {
		var err error
		order, unfulfilled, err = r.createOrderTx(ctx, buyerID, totalCents)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return order, unfulfilled, nil
}

func (r *PostgresRepository) createOrderTx(ctx context.Context, buyerID, totalCents int64) (*model.Order, []int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT listing_id FROM cart_entries WHERE buyer_id = $1 ORDER BY id`,
		buyerID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("select cart: %w", err)
	}

	var listingIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scan cart entry: %w", err)
		}
		listingIDs = append(listingIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("rows error: %w", err)
	}

	if len(listingIDs) == 0 {
		return nil, nil, ErrCartEmpty
	}

	order := &model.Order{
		BuyerID:    buyerID,
		TotalCents: totalCents,
		Status:     model.OrderStatusCompleted,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (buyer_id, total_cents, status) VALUES ($1, $2, $3) RETURNING id, created_at`,
		buyerID, totalCents, string(model.OrderStatusCompleted),
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("insert order: %w", err)
	}

	var unfulfilled []int64
	for _, listingID := range listingIDs {
		var priceCents int64
		err := tx.QueryRow(ctx,
			`UPDATE listings SET is_available = FALSE WHERE id = $1 AND is_available = TRUE RETURNING price_cents`,
			listingID,
		).Scan(&priceCents)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Объявление исчезло или уже продано другим покупателем.
				unfulfilled = append(unfulfilled, listingID)
				continue
			}
			return nil, nil, fmt.Errorf("claim listing: %w", err)
		}

		line := model.OrderLine{
			OrderID:    order.ID,
			ListingID:  listingID,
			PriceCents: priceCents,
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO order_lines (order_id, listing_id, price_cents) VALUES ($1, $2, $3) RETURNING id`,
			order.ID, listingID, priceCents,
		).Scan(&line.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("insert order line: %w", err)
		}
		order.Lines = append(order.Lines, line)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_entries WHERE buyer_id = $1`, buyerID); err != nil {
		return nil, nil, fmt.Errorf("clear cart: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}

	return order, unfulfilled, nil
}

// GetOrdersByBuyer возвращает заказы покупателя со строками и данными объявлений,
// новые заказы первыми.
func (r *PostgresRepository) GetOrdersByBuyer(ctx context.Context, buyerID int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, buyer_id, total_cents, status, created_at
		 FROM orders
		 WHERE buyer_id = $1
		 ORDER BY created_at DESC, id DESC`,
		buyerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	index := make(map[int64]int)
	for rows.Next() {
		var o model.Order
		var status string
		if err := rows.Scan(&o.ID, &o.BuyerID, &o.TotalCents, &status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(orders) == 0 {
		return orders, nil
	}

	lineRows, err := r.pool.Query(ctx,
		`SELECT ol.id, ol.order_id, ol.listing_id, ol.price_cents,
		        l.id, l.title, l.author, l.description, l.price_cents, l.condition,
		        l.category, l.image_url, l.seller_id, l.is_available, l.created_at
		 FROM order_lines ol
		 JOIN orders o ON o.id = ol.order_id
		 JOIN listings l ON l.id = ol.listing_id
		 WHERE o.buyer_id = $1
		 ORDER BY ol.id`,
		buyerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order lines: %w", err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var line model.OrderLine
		var l model.Listing
		var condition string
		err := lineRows.Scan(
			&line.ID, &line.OrderID, &line.ListingID, &line.PriceCents,
			&l.ID, &l.Title, &l.Author, &l.Description, &l.PriceCents, &condition,
			&l.Category, &l.ImageURL, &l.SellerID, &l.IsAvailable, &l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		l.Condition = model.Condition(condition)
		line.Listing = &l

		if i, ok := index[line.OrderID]; ok {
			orders[i].Lines = append(orders[i].Lines, line)
		}
	}
	if err := lineRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// CreateMessage сохраняет новое сообщение.
func (r *PostgresRepository) CreateMessage(ctx context.Context, senderID, receiverID int64, listingID *int64, content string) (*model.Message, error) {
	m := &model.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		ListingID:  listingID,
		Content:    content,
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO messages (sender_id, receiver_id, listing_id, content) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		senderID, receiverID, listingID, content,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// GetMessageThread возвращает переписку двух пользователей по возрастанию времени отправки.
// Результат не зависит от порядка аргументов.
func (r *PostgresRepository) GetMessageThread(ctx context.Context, userA, userB int64) ([]model.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, sender_id, receiver_id, listing_id, content, created_at
		 FROM messages
		 WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		 ORDER BY created_at, id`,
		userA, userB,
	)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	var res []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.ListingID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
