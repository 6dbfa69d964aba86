// Package seed fills an empty database with realistic looking fixtures.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"

	"pearl/internal/util"
	"pearl/pkg/auth"
	"pearl/pkg/domain"
	"pearl/pkg/store"
)

// Options controls how much data is generated.
type Options struct {
	// Users counts every account including the admin.
	Users    int
	Products int
	Orders   int
	// Seed makes the generated content reproducible. Zero picks a random seed.
	Seed int64

	AdminPhone    string
	AdminEmail    string
	AdminPassword string
	UserPassword  string

	// ReviewedOrders caps how many delivered orders receive reviews.
	ReviewedOrders int

	Logger *slog.Logger
	Now    func() time.Time
}

// DefaultOptions mirrors the command line defaults.
func DefaultOptions() Options {
	return Options{
		Users:          100,
		Products:       1000,
		Orders:         500,
		AdminPhone:     "+79039949609",
		AdminEmail:     "admin@pearl.local",
		AdminPassword:  "admin123",
		UserPassword:   "testpass123",
		ReviewedOrders: 200,
	}
}

// Stats reports what was written.
type Stats struct {
	Accounts   int
	Products   int
	Orders     int
	OrderItems int
	Reviews    int
}

type generator struct {
	st     store.Store
	opts   Options
	fake   *gofakeit.Faker
	now    time.Time
	logger *slog.Logger

	articles map[string]bool
	numbers  map[string]bool
}

// Run wipes st and generates a fresh data set.
func Run(ctx context.Context, st store.Store, opts Options) (Stats, error) {
	if st == nil {
		return Stats{}, errors.New("store required")
	}
	if opts.Users < 1 {
		return Stats{}, errors.New("at least one user (the admin) is required")
	}
	if opts.Products < 0 || opts.Orders < 0 {
		return Stats{}, errors.New("counts must not be negative")
	}
	if opts.Orders > 0 && opts.Products == 0 {
		return Stats{}, errors.New("orders need at least one product")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	g := &generator{
		st:       st,
		opts:     opts,
		fake:     gofakeit.New(opts.Seed),
		now:      opts.Now().UTC(),
		logger:   opts.Logger,
		articles: map[string]bool{},
		numbers:  map[string]bool{},
	}

	if err := st.Wipe(); err != nil {
		return Stats{}, fmt.Errorf("wipe: %w", err)
	}
	g.logger.Info("seed_wiped")

	var stats Stats
	accounts, err := g.accounts(ctx)
	if err != nil {
		return stats, err
	}
	stats.Accounts = len(accounts)

	products, err := g.products(ctx)
	if err != nil {
		return stats, err
	}
	stats.Products = len(products)

	orders, items, err := g.orders(ctx, accounts, products)
	if err != nil {
		return stats, err
	}
	stats.Orders, stats.OrderItems = len(orders), items

	stats.Reviews, err = g.reviews(ctx, orders)
	if err != nil {
		return stats, err
	}
	g.logger.Info("seed_done",
		"accounts", stats.Accounts,
		"products", stats.Products,
		"orders", stats.Orders,
		"order_items", stats.OrderItems,
		"reviews", stats.Reviews,
	)
	return stats, nil
}

func (g *generator) pastDays(min, max int) time.Time {
	return g.now.Add(-time.Duration(g.fake.Number(min, max)) * 24 * time.Hour)
}

var cities = []string{"Moscow", "Saint Petersburg", "Yekaterinburg", "Novosibirsk", "Kazan", "Nizhny Novgorod", "Chelyabinsk", "Samara", "Omsk", "Rostov-on-Don"}

var bios = []string{
	"Love quality cosmetics",
	"Regular customer",
	"Looking for the best skin care",
	"Prefer luxury brands",
	"Always testing new releases",
}

func (g *generator) accounts(ctx context.Context) ([]domain.Account, error) {
	adminHash, err := auth.HashPassword(g.opts.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	userHash, err := auth.HashPassword(g.opts.UserPassword)
	if err != nil {
		return nil, fmt.Errorf("hash user password: %w", err)
	}

	out := make([]domain.Account, 0, g.opts.Users)
	admin := domain.Account{
		ID:           util.NewID(),
		Username:     "admin",
		Email:        g.opts.AdminEmail,
		Phone:        g.opts.AdminPhone,
		FirstName:    "Administrator",
		LastName:     "Pearl",
		PasswordHash: adminHash,
		Role:         domain.RoleAdmin,
		IsActive:     true,
		IsVerified:   true,
		CreatedAt:    g.now,
		UpdatedAt:    g.now,
	}
	profile := domain.NewProfile(admin.ID, g.now)
	profile.Bio = "Pearl store administrator"
	profile.City = "Moscow"
	profile.Country = "Russia"
	profile.Address = "Moscow, Sirenevy blvd 53"
	profile.PostalCode = "123456"
	if err := g.saveAccount(admin, profile); err != nil {
		return nil, err
	}
	out = append(out, admin)

	for i := 1; i < g.opts.Users; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		joined := g.pastDays(1, 365)
		acc := domain.Account{
			ID:           util.NewID(),
			Username:     fmt.Sprintf("user_%d", i),
			Email:        fmt.Sprintf("user%d@example.com", i),
			Phone:        fmt.Sprintf("+79%09d", i),
			FirstName:    g.fake.FirstName(),
			LastName:     g.fake.LastName(),
			PasswordHash: userHash,
			Role:         domain.RoleUser,
			IsActive:     true,
			IsVerified:   true,
			CreatedAt:    joined,
			UpdatedAt:    joined,
		}
		p := domain.NewProfile(acc.ID, joined)
		p.Bio = g.fake.RandomString(bios)
		p.City = g.fake.RandomString(cities)
		p.Country = "Russia"
		p.Address = fmt.Sprintf("%s, %s %d", g.fake.RandomString(cities), g.fake.Street(), g.fake.Number(1, 100))
		p.PostalCode = fmt.Sprintf("%06d", g.fake.Number(100000, 199999))
		p.NewsletterSubscription = g.fake.Bool()
		if err := g.saveAccount(acc, p); err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	g.logger.Info("seed_accounts", "count", len(out))
	return out, nil
}

func (g *generator) saveAccount(acc domain.Account, p domain.Profile) error {
	if err := g.st.SaveAccount(acc); err != nil {
		return fmt.Errorf("save account %s: %w", acc.Username, err)
	}
	if err := g.st.SaveProfile(p); err != nil {
		return fmt.Errorf("save profile %s: %w", acc.Username, err)
	}
	return nil
}

type categoryBand struct {
	category   domain.ProductCategory
	minPrice   int
	maxPrice   int
	types      []string
	imagePaths []string
}

var catalog = []categoryBand{
	{domain.CategoryMakeup, 300, 5000, []string{"Foundation", "Powder", "Concealer", "Blush", "Mascara", "Lipstick", "Eyeshadow"},
		[]string{"photo-1571781926291-c477ebfd024b", "photo-1586495777744-4413f21062fa", "photo-1596462502278-27bfdc403348"}},
	{domain.CategorySkinCare, 800, 8000, []string{"Cream", "Serum", "Mask", "Cleanser", "Toner", "Scrub"},
		[]string{"photo-1556228578-8c89e6adf883", "photo-1556228577-8ed324c4f5ab", "photo-1590439471364-192aa70c0b53"}},
	{domain.CategoryHairCare, 400, 6000, []string{"Shampoo", "Conditioner", "Hair mask", "Hair oil", "Spray"},
		[]string{"photo-1608248543803-ba4f8c70ae0b", "photo-1560066984-138dadb4c035", "photo-1580618672591-eb180b1a973f"}},
	{domain.CategoryPerfumery, 2000, 15000, []string{"Eau de toilette", "Eau de parfum", "Perfume", "Cologne"},
		[]string{"photo-1541643600914-78b084683601", "photo-1590736968-d14609d5bbe5", "photo-1592945403244-b3fbafd7f539"}},
	{domain.CategoryAccessories, 200, 3000, []string{"Brush set", "Sponge", "Mirror", "Comb", "Cosmetic bag"},
		[]string{"photo-1589666564452-e94edaddd8f5", "photo-1594223274512-ad4803739b7c", "photo-1560890721-84ec0e9d8dcb"}},
}

var brands = []string{
	"L'OREAL PARIS", "MAYBELLINE NEW YORK", "NYX PROFESSIONAL MAKEUP", "GARNIER",
	"LA ROCHE-POSAY", "VICHY", "BIODERMA", "CERAVE", "LANCOME", "DIOR",
	"CHANEL", "ESTEE LAUDER", "CLINIQUE", "CLARINS", "SHISEIDO", "THE ORDINARY",
}

// reference draws prefix plus n upper-case hex digits from the seeded faker,
// retrying until the value is unused in seen.
func (g *generator) reference(prefix string, n int, seen map[string]bool) string {
	for {
		var b strings.Builder
		b.WriteString(prefix)
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "%X", g.fake.Number(0, 15))
		}
		ref := b.String()
		if !seen[ref] {
			seen[ref] = true
			return ref
		}
	}
}

func (g *generator) products(ctx context.Context) ([]domain.Product, error) {
	out := make([]domain.Product, 0, g.opts.Products)
	for i := 0; i < g.opts.Products; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		band := catalog[g.fake.Number(0, len(catalog)-1)]
		kind := g.fake.RandomString(band.types)
		brand := g.fake.RandomString(brands)
		weight := decimal.NewFromFloat(g.fake.Float64Range(10, 500)).Round(2)
		created := g.pastDays(1, 180)
		p := domain.Product{
			ID:            util.NewID(),
			Name:          brand + " " + kind,
			Description:   fmt.Sprintf("Quality %s from %s. Suitable for daily use.", kind, brand),
			Price:         decimal.NewFromInt(int64(g.fake.Number(band.minPrice, band.maxPrice))),
			Category:      band.category,
			Article:       g.reference("P", 8, g.articles),
			StockQuantity: g.fake.Number(0, 200),
			Image:         "https://images.unsplash.com/" + g.fake.RandomString(band.imagePaths) + "?w=500",
			IsAvailable:   g.fake.Number(1, 4) != 1,
			Weight:        &weight,
			CreatedAt:     created,
			UpdatedAt:     created,
		}
		if err := g.st.SaveProduct(p); err != nil {
			return nil, fmt.Errorf("save product %s: %w", p.Article, err)
		}
		out = append(out, p)
	}
	g.logger.Info("seed_products", "count", len(out))
	return out, nil
}

var (
	orderStatuses = []domain.OrderStatus{
		domain.OrderPending, domain.OrderProcessing, domain.OrderShipped, domain.OrderDelivered, domain.OrderCancelled,
	}
	paymentStatuses = []domain.PaymentStatus{domain.PaymentPending, domain.PaymentPaid, domain.PaymentFailed}
	orderNotes      = []string{"Call before delivery", "Leave at the door", "Deliver after 18:00", ""}
)

func (g *generator) orders(ctx context.Context, accounts []domain.Account, products []domain.Product) ([]domain.Order, int, error) {
	out := make([]domain.Order, 0, g.opts.Orders)
	itemCount := 0
	for i := 0; i < g.opts.Orders; i++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		acc := accounts[g.fake.Number(0, len(accounts)-1)]
		created := g.pastDays(1, 90)
		o := domain.Order{
			ID:              util.NewID(),
			AccountID:       acc.ID,
			OrderNumber:     g.reference("ORD-", 10, g.numbers),
			Status:          orderStatuses[g.fake.Number(0, len(orderStatuses)-1)],
			PaymentStatus:   paymentStatuses[g.fake.Number(0, len(paymentStatuses)-1)],
			TotalAmount:     decimal.Zero,
			ShippingAddress: fmt.Sprintf("%s, %s %d, apt. %d", g.fake.RandomString(cities), g.fake.Street(), g.fake.Number(1, 100), g.fake.Number(1, 150)),
			CustomerNotes:   g.fake.RandomString(orderNotes),
			CustomerEmail:   acc.Email,
			CustomerPhone:   acc.Phone,
			CreatedAt:       created,
			UpdatedAt:       created,
		}
		n := min(g.fake.Number(1, 5), len(products))
		picked := map[int]bool{}
		for len(o.Items) < n {
			idx := g.fake.Number(0, len(products)-1)
			if picked[idx] {
				continue
			}
			picked[idx] = true
			p := products[idx]
			o.Items = append(o.Items, domain.OrderItem{
				ID:        util.NewID(),
				OrderID:   o.ID,
				ProductID: p.ID,
				Quantity:  g.fake.Number(1, 3),
				UnitPrice: p.Price,
			})
		}
		if err := g.st.CreateOrder(o); err != nil {
			return nil, 0, fmt.Errorf("create order %s: %w", o.OrderNumber, err)
		}
		total, err := g.st.RecomputeOrderTotal(o.ID, created)
		if err != nil {
			return nil, 0, fmt.Errorf("total order %s: %w", o.OrderNumber, err)
		}
		o.TotalAmount = total
		itemCount += len(o.Items)
		out = append(out, o)
	}
	g.logger.Info("seed_orders", "count", len(out), "items", itemCount)
	return out, itemCount, nil
}

type reviewTemplate struct {
	rating  domain.Rating
	title   string
	comment string
}

var reviewTemplates = []reviewTemplate{
	{5, "Excellent product!", "Very happy with the purchase, top quality."},
	{4, "Good quality", "Matches the description, fast delivery."},
	{3, "Okay", "Decent for the price but has some flaws."},
	{5, "Delighted!", "Exceeded every expectation. Will buy again."},
	{2, "Disappointed", "Does not live up to the advertised quality."},
}

// reviews covers up to ReviewedOrders delivered orders, reviewing about half
// of their items.
func (g *generator) reviews(ctx context.Context, orders []domain.Order) (int, error) {
	count, reviewed := 0, 0
	for _, o := range orders {
		if o.Status != domain.OrderDelivered {
			continue
		}
		if g.opts.ReviewedOrders > 0 && reviewed >= g.opts.ReviewedOrders {
			break
		}
		reviewed++
		for _, item := range o.Items {
			if err := ctx.Err(); err != nil {
				return count, err
			}
			if !g.fake.Bool() {
				continue
			}
			tpl := reviewTemplates[g.fake.Number(0, len(reviewTemplates)-1)]
			created := o.CreatedAt.Add(time.Duration(g.fake.Number(1, 7)) * 24 * time.Hour)
			r := domain.Review{
				ID:         util.NewID(),
				AccountID:  o.AccountID,
				ProductID:  item.ProductID,
				OrderID:    o.ID,
				Rating:     tpl.rating,
				Title:      tpl.title,
				Comment:    tpl.comment,
				IsApproved: g.fake.Bool(),
				CreatedAt:  created,
				UpdatedAt:  created,
			}
			if err := g.st.CreateReview(r); err != nil {
				return count, fmt.Errorf("create review: %w", err)
			}
			count++
		}
	}
	g.logger.Info("seed_reviews", "count", count, "orders", reviewed)
	return count, nil
}
