// Package servicetest provides in-memory collaborators for exercising the
// service layer without PostgreSQL.
package servicetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/safar/rain-market/internal/database"
	"github.com/safar/rain-market/internal/models"
	"github.com/safar/rain-market/internal/pricing"
	"github.com/safar/rain-market/internal/store"
)

// MemStore mirrors the PostgreSQL store's semantics in memory. It is safe
// for concurrent use; every method holds the lock for its whole duration,
// which gives the same effect as the row locks the real store takes.
type MemStore struct {
	mu sync.Mutex

	nextID   int64
	clock    time.Time
	users    map[int64]*models.User
	products map[int64]*models.Product
	offers   map[int64]*models.Offer
	orders   map[int64]*models.Order
	payments map[int64]*models.Payment
	apps     map[int64]*models.SupplierApplication
	events   map[string]string

	// UpdatePaymentErr, when set, is returned by UpdatePaymentStatus.
	UpdatePaymentErr error
}

func NewMemStore() *MemStore {
	return &MemStore{
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		users:    make(map[int64]*models.User),
		products: make(map[int64]*models.Product),
		offers:   make(map[int64]*models.Offer),
		orders:   make(map[int64]*models.Order),
		payments: make(map[int64]*models.Payment),
		apps:     make(map[int64]*models.SupplierApplication),
		events:   make(map[string]string),
	}
}

func (m *MemStore) id() int64 {
	m.nextID++
	return m.nextID
}

// now advances a fake clock so rows get strictly increasing timestamps.
func (m *MemStore) now() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *MemStore) AddUser(name string, roles ...models.Role) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := &models.User{
		ID:    m.id(),
		Email: name + "@example.com",
		Name:  name,
		Roles: roles,
	}
	u.CreatedAt = m.now()
	u.UpdatedAt = u.CreatedAt
	u.Version = 1
	m.users[u.ID] = u
	return u
}

func (m *MemStore) AddProduct(sku, name string) *models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := &models.Product{ID: m.id(), SKU: sku, Name: name}
	p.CreatedAt = m.now()
	p.UpdatedAt = p.CreatedAt
	m.products[p.ID] = p
	return p
}

// AddOffer stores a copy of o with a fresh id and returns it.
func (m *MemStore) AddOffer(o models.Offer) *models.Offer {
	m.mu.Lock()
	defer m.mu.Unlock()

	o.ID = m.id()
	o.Version = 1
	o.CreatedAt = m.now()
	o.UpdatedAt = o.CreatedAt
	m.offers[o.ID] = &o
	out := o
	return &out
}

// AddApprovedApplication records an application already approved at the
// next clock tick.
func (m *MemStore) AddApprovedApplication(userID int64, plan models.PlanType) *models.SupplierApplication {
	m.mu.Lock()
	defer m.mu.Unlock()

	reviewed := m.now()
	app := &models.SupplierApplication{
		ID:          m.id(),
		UserID:      userID,
		DisplayName: fmt.Sprintf("supplier-%d", userID),
		PlanType:    plan,
		Status:      models.ApplicationApproved,
		CreatedAt:   reviewed,
		ReviewedAt:  &reviewed,
	}
	m.apps[app.ID] = app
	m.grant(userID, models.RoleSupplier)
	return app
}

func (m *MemStore) grant(userID int64, role models.Role) {
	u, ok := m.users[userID]
	if !ok || u.HasRole(role) {
		return
	}
	u.Roles = append(u.Roles, role)
}

func (m *MemStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	out := *u
	out.Roles = append([]models.Role(nil), u.Roles...)
	return &out, nil
}

func (m *MemStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, database.ErrProductNotFound
	}
	out := *p
	return &out, nil
}

func (m *MemStore) GetOffer(ctx context.Context, id int64) (*models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.offers[id]
	if !ok {
		return nil, database.ErrOfferNotFound
	}
	out := *o
	return &out, nil
}

func (m *MemStore) CreateOffer(ctx context.Context, offer *models.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	offer.ID = m.id()
	offer.Version = 1
	offer.CreatedAt = m.now()
	offer.UpdatedAt = offer.CreatedAt
	stored := *offer
	m.offers[offer.ID] = &stored
	return nil
}

func (m *MemStore) UpdateOffer(ctx context.Context, offer *models.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.offers[offer.ID]
	if !ok || stored.SupplierID != offer.SupplierID || stored.Version != offer.Version {
		return database.ErrOptimisticLockFailed
	}

	stored.Price = offer.Price
	stored.StockQuantity = offer.StockQuantity
	stored.MinOrderQty = offer.MinOrderQty
	stored.IsActive = offer.IsActive
	stored.Version++
	stored.UpdatedAt = m.now()
	*offer = *stored
	return nil
}

func (m *MemStore) CreateOrder(ctx context.Context, req store.CreateOrderRequest, quote store.QuoteFunc) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[req.BuyerID]; !ok {
		return nil, database.ErrUserNotFound
	}
	offer, ok := m.offers[req.OfferID]
	if !ok {
		return nil, database.ErrOfferNotFound
	}

	line, err := quote(*offer)
	if err != nil {
		return nil, err
	}
	if offer.StockQuantity < req.Quantity {
		return nil, database.ErrInsufficientStock
	}

	now := m.now()
	order := &models.Order{
		ID:                m.id(),
		BuyerID:           req.BuyerID,
		Status:            models.OrderStatusPending,
		TotalAmount:       pricing.Total(line),
		ShippingAddressID: req.ShippingAddressID,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}
	order.OrderNumber = fmt.Sprintf("ORD-%d", order.ID)
	order.Items = []models.OrderItem{{
		ID:               m.id(),
		OrderID:          order.ID,
		OfferID:          offer.ID,
		SupplierID:       offer.SupplierID,
		Quantity:         req.Quantity,
		UnitPrice:        line.UnitPrice,
		LineTotal:        line.LineTotal,
		CommissionRate:   line.CommissionRate,
		CommissionAmount: line.CommissionAmount,
		NetToSupplier:    line.NetToSupplier,
		CreatedAt:        now,
	}}

	offer.StockQuantity -= req.Quantity
	m.orders[order.ID] = order
	return copyOrder(order), nil
}

func copyOrder(o *models.Order) *models.Order {
	out := *o
	out.Items = append([]models.OrderItem(nil), o.Items...)
	return &out
}

func (m *MemStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, database.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (m *MemStore) TransitionOrder(ctx context.Context, id int64, from, to models.OrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.Version++
	o.UpdatedAt = m.now()
	return true, nil
}

func (m *MemStore) ListOrdersCursor(ctx context.Context, buyerID int64, cursor string, limit int) (*store.CursorPage, error) {
	return m.listOrders(cursor, limit, func(o *models.Order) bool { return o.BuyerID == buyerID })
}

func (m *MemStore) ListSupplierOrdersCursor(ctx context.Context, supplierID int64, cursor string, limit int) (*store.CursorPage, error) {
	return m.listOrders(cursor, limit, func(o *models.Order) bool {
		some, _ := o.SupplierRole(supplierID)
		return some
	})
}

func (m *MemStore) listOrders(cursor string, limit int, match func(*models.Order) bool) (*store.CursorPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := store.DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	var matched []models.Order
	for _, o := range m.orders {
		if !match(o) {
			continue
		}
		if o.CreatedAt.After(c.CreatedAt) || (o.CreatedAt.Equal(c.CreatedAt) && o.ID >= c.ID) {
			continue
		}
		out := *o
		out.Items = nil
		matched = append(matched, out)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	page := &store.CursorPage{}
	if len(matched) > limit {
		matched = matched[:limit]
		last := matched[len(matched)-1]
		page.HasMore = true
		page.NextCursor = store.EncodeCursor(store.OrderCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	if matched == nil {
		matched = []models.Order{}
	}
	page.Items = matched
	return page, nil
}

func (m *MemStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.ID = m.id()
	p.CreatedAt = m.now()
	p.UpdatedAt = p.CreatedAt
	p.Version = 1
	stored := *p
	m.payments[p.ID] = &stored
	return nil
}

func (m *MemStore) SetPaymentReference(ctx context.Context, id int64, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return database.ErrPaymentNotFound
	}
	ref := reference
	p.ProviderReference = &ref
	p.Version++
	return nil
}

func (m *MemStore) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, database.ErrPaymentNotFound
	}
	out := *p
	return &out, nil
}

func (m *MemStore) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.payments {
		if p.ProviderReference != nil && *p.ProviderReference == reference {
			out := *p
			return &out, nil
		}
	}
	return nil, database.ErrPaymentNotFound
}

func (m *MemStore) LatestPaymentForOrder(ctx context.Context, orderID int64) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.latestPayment(orderID)
	if p == nil {
		return nil, database.ErrPaymentNotFound
	}
	out := *p
	return &out, nil
}

func (m *MemStore) latestPayment(orderID int64) *models.Payment {
	var latest *models.Payment
	for _, p := range m.payments {
		if p.OrderID != orderID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) ||
			(p.CreatedAt.Equal(latest.CreatedAt) && p.ID > latest.ID) {
			latest = p
		}
	}
	return latest
}

// Payments returns every attempt for the order, oldest first.
func (m *MemStore) Payments(orderID int64) []models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Payment
	for _, p := range m.payments {
		if p.OrderID == orderID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemStore) UpdatePaymentStatus(ctx context.Context, id int64, status models.PaymentStatus) (models.PaymentStatus, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpdatePaymentErr != nil {
		return "", false, m.UpdatePaymentErr
	}

	p, ok := m.payments[id]
	if !ok {
		return "", false, database.ErrPaymentNotFound
	}
	previous := p.Status
	if previous == status {
		return previous, false, nil
	}
	p.Status = status
	p.Version++
	p.UpdatedAt = m.now()
	return previous, true, nil
}

func (m *MemStore) CancelOrder(ctx context.Context, id int64) (store.CancelResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res store.CancelResult
	o, ok := m.orders[id]
	if !ok {
		return res, database.ErrOrderNotFound
	}
	if o.Status != models.OrderStatusPending {
		return res, nil
	}
	for _, p := range m.payments {
		if p.OrderID == id && p.Status == models.PaymentStatusCaptured {
			return res, database.ErrPaymentCaptured
		}
	}

	o.Status = models.OrderStatusCancelled
	o.Version++
	o.UpdatedAt = m.now()

	for _, item := range o.Items {
		if offer, ok := m.offers[item.OfferID]; ok {
			offer.StockQuantity += item.Quantity
			res.Restocked += item.Quantity
		}
	}
	for _, p := range m.payments {
		if p.OrderID == id && p.Status == models.PaymentStatusPending {
			p.Status = models.PaymentStatusCancelled
			p.Version++
			res.PaymentsCancelled++
		}
	}

	res.Applied = true
	return res, nil
}

func (m *MemStore) CreateApplication(ctx context.Context, app *models.SupplierApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	app.ID = m.id()
	app.Status = models.ApplicationPending
	app.CreatedAt = m.now()
	stored := *app
	m.apps[app.ID] = &stored
	return nil
}

func (m *MemStore) ReviewApplication(ctx context.Context, id int64, decision models.ApplicationStatus, reviewerID int64, notes *string) (*models.SupplierApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return nil, database.ErrApplicationNotFound
	}
	if app.Status != models.ApplicationPending {
		return nil, database.ErrAlreadyReviewed
	}

	reviewed := m.now()
	reviewer := reviewerID
	app.Status = decision
	app.ReviewedAt = &reviewed
	app.ReviewerID = &reviewer
	app.ReviewNotes = notes

	if decision == models.ApplicationApproved {
		m.grant(app.UserID, models.RoleSupplier)
	}

	out := *app
	return &out, nil
}

func (m *MemStore) ListApplications(ctx context.Context, status *models.ApplicationStatus, page, pageSize int) (*store.OffsetPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []models.SupplierApplication
	for _, a := range m.apps {
		if status == nil || a.Status == *status {
			matched = append(matched, *a)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}

	pages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		pages++
	}

	return &store.OffsetPage{
		Items:      append([]models.SupplierApplication{}, matched[start:end]...),
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: pages,
	}, nil
}

func (m *MemStore) LatestApprovedPlan(ctx context.Context, supplierID int64) (models.PlanType, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *models.SupplierApplication
	for _, a := range m.apps {
		if a.UserID != supplierID || a.Status != models.ApplicationApproved || a.ReviewedAt == nil {
			continue
		}
		if latest == nil || a.ReviewedAt.After(*latest.ReviewedAt) {
			latest = a
		}
	}
	if latest == nil {
		return "", false, nil
	}
	return latest.PlanType, true, nil
}

func eventKey(provider, eventID string) string {
	return provider + "/" + eventID
}

func (m *MemStore) IsWebhookEventProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.events[eventKey(provider, eventID)]
	return ok, nil
}

func (m *MemStore) MarkWebhookEventProcessed(ctx context.Context, provider, eventID, eventType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := eventKey(provider, eventID)
	if _, ok := m.events[key]; ok {
		return false, nil
	}
	m.events[key] = eventType
	return true, nil
}

func (m *MemStore) SupplierEarnings(ctx context.Context, f store.EarningsFilter) ([]models.EarningsLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines := m.earningsLines(f)
	if f.Limit > 0 && len(lines) > f.Limit {
		lines = lines[:f.Limit]
	}
	return lines, nil
}

func (m *MemStore) SupplierEarningsTotals(ctx context.Context, f store.EarningsFilter) (models.EarningsTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := models.EarningsTotals{Gross: decimal.Zero, Commission: decimal.Zero, Net: decimal.Zero}
	for _, l := range m.earningsLines(f) {
		t.Lines++
		t.Gross = t.Gross.Add(l.LineTotal)
		t.Commission = t.Commission.Add(l.CommissionAmount)
		t.Net = t.Net.Add(l.NetToSupplier)
	}
	return t, nil
}

func (m *MemStore) earningsLines(f store.EarningsFilter) []models.EarningsLine {
	lines := []models.EarningsLine{}
	for _, o := range m.orders {
		if o.Status == models.OrderStatusCancelled {
			continue
		}
		if f.From != nil && o.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !o.CreatedAt.Before(*f.To) {
			continue
		}
		for _, item := range o.Items {
			if item.SupplierID != f.SupplierID {
				continue
			}
			name := ""
			if offer, ok := m.offers[item.OfferID]; ok {
				if p, ok := m.products[offer.ProductID]; ok {
					name = p.Name
				}
			}
			lines = append(lines, models.EarningsLine{
				OrderID:          o.ID,
				OrderDate:        o.CreatedAt,
				ProductName:      name,
				Quantity:         item.Quantity,
				UnitPrice:        item.UnitPrice,
				LineTotal:        item.LineTotal,
				CommissionRate:   item.CommissionRate,
				CommissionAmount: item.CommissionAmount,
				NetToSupplier:    item.NetToSupplier,
			})
		}
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].OrderDate.After(lines[j].OrderDate) })
	return lines
}

// SetPaymentStatus forces a payment's status, bypassing reconciliation.
func (m *MemStore) SetPaymentStatus(id int64, status models.PaymentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.payments[id]; ok {
		p.Status = status
	}
}

// OfferStock returns the offer's remaining stock.
func (m *MemStore) OfferStock(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o, ok := m.offers[id]; ok {
		return o.StockQuantity
	}
	return 0
}

// Money parses a decimal literal and panics on malformed input.
func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
