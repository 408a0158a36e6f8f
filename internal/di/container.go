package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stitchfield/api/internal/payments"
	"github.com/stitchfield/api/internal/platform/config"
	"github.com/stitchfield/api/internal/repositories"
	"github.com/stitchfield/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Checkout  services.CheckoutService
	Orders    services.OrderService
	Coupons   services.CouponService
	Inventory services.InventoryService
	Cart      services.CartService
	Catalog   services.CatalogService
	System    services.SystemService
}

// ContainerDeps carries collaborators that live outside the repository registry:
// the gateway verifier, outbound mail, the event publisher, and build metadata.
type ContainerDeps struct {
	Verifier payments.Verifier
	Mailer   services.ConfirmationMailer
	Events   services.OrderEventPublisher
	Build    services.BuildInfo
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	CartSyncer   *services.CartSyncer
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps ContainerDeps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("payment verifier is required")
	}

	svc, syncer, err := buildServices(ctx, reg, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
		CartSyncer:   syncer,
	}, nil
}

// Close releases resources such as repository clients and background workers.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.CartSyncer != nil {
		if err := c.CartSyncer.Close(ctx); err != nil {
			return err
		}
	}
	if c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(ctx context.Context, reg repositories.Registry, cfg config.Config, deps ContainerDeps) (Services, *services.CartSyncer, error) {
	var svc Services

	coupons, err := services.NewCouponService(services.CouponServiceDeps{
		Coupons: reg.Coupons(),
		Clock:   time.Now,
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build coupon service: %w", err)
	}
	svc.Coupons = coupons

	inventory, err := services.NewInventoryService(services.InventoryServiceDeps{
		Products: reg.Products(),
		Clock:    time.Now,
		Logger:   deps.Logger,
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventory

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: reg.Products(),
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalog

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		OrderItems: reg.OrderItems(),
		Returns:    reg.Returns(),
		Inventory:  inventory,
		Clock:      time.Now,
		Events:     deps.Events,
		Logger:     deps.Logger,
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Verifier:   deps.Verifier,
		Orders:     reg.Orders(),
		OrderItems: reg.OrderItems(),
		Coupons:    coupons,
		Inventory:  inventory,
		Mailer:     deps.Mailer,
		Events:     deps.Events,
		CodePrefix: cfg.Store.CodePrefix,
		Currency:   cfg.Store.Currency,
		Clock:      time.Now,
		Logger:     deps.Logger,
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkout

	syncer, err := services.NewCartSyncer(reg.Carts(), 0, deps.Logger)
	if err != nil {
		return Services{}, nil, fmt.Errorf("build cart syncer: %w", err)
	}
	syncer.Start(ctx)

	cart, err := services.NewCartService(services.CartServiceDeps{
		Carts:     reg.Carts(),
		Wishlists: reg.Wishlists(),
		Syncer:    syncer,
		Currency:  cfg.Store.Currency,
		Clock:     time.Now,
		Logger:    deps.Logger,
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cart

	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Clock:            time.Now,
		Build:            deps.Build,
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build system service: %w", err)
	}
	svc.System = system

	return svc, syncer, nil
}
