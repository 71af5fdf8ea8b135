// Package unimerch assembles the storefront state layer: one constructor
// wires config, logging, storage, telemetry, the API client and every store
// so the embedding application deals with a single object.
package unimerch

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/snag21205/unimerch/api"
	"github.com/snag21205/unimerch/cart"
	"github.com/snag21205/unimerch/catalog"
	"github.com/snag21205/unimerch/core"
	"github.com/snag21205/unimerch/order"
	"github.com/snag21205/unimerch/review"
	"github.com/snag21205/unimerch/session"
	"github.com/snag21205/unimerch/telemetry"
)

// Storefront is the assembled client-side state layer.
type Storefront struct {
	Session *session.Store
	Cart    *cart.Store
	Orders  *order.Coordinator
	Catalog *catalog.View
	Reviews *review.Store
	API     *api.Client

	cfg       *core.Config
	logger    core.Logger
	storage   core.Storage
	telemetry *telemetry.Provider // nil when disabled

	navMu    sync.Mutex
	navigate func(url string)
}

// New builds a Storefront from defaults, environment and options.
func New(opts ...core.Option) (*Storefront, error) {
	cfg, err := core.NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	logger := core.NewLogger(cfg.Logging)

	storage, err := newStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	var tel core.Telemetry = &core.NoOpTelemetry{}
	var provider *telemetry.Provider
	if cfg.Telemetry.Enabled {
		provider, err = telemetry.NewProvider(cfg.Telemetry)
		if err != nil {
			return nil, fmt.Errorf("initializing telemetry: %w", err)
		}
		tel = provider
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	if cfg.Telemetry.Enabled {
		httpClient.Transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	sess := session.New(storage, logger)

	sf := &Storefront{
		Session:   sess,
		cfg:       cfg,
		logger:    logger,
		storage:   storage,
		telemetry: provider,
	}

	sf.API = api.New(api.Options{
		BaseURL:          cfg.APIBaseURL,
		HTTPClient:       httpClient,
		Tokens:           sess,
		OnSessionExpired: sf.sessionExpired,
		Logger:           logger,
		Telemetry:        tel,
	})

	sf.Cart = cart.New(cart.Options{
		API:       sf.API,
		Session:   sess,
		Storage:   storage,
		Logger:    logger,
		Telemetry: tel,
	})
	sf.Orders = order.New(order.Options{
		API:       sf.API,
		Cart:      sf.Cart,
		Session:   sess,
		Logger:    logger,
		Telemetry: tel,
	})
	sf.Catalog = catalog.New(sf.API, logger)
	sf.Reviews = review.New(sf.API, sess, logger)

	logger.Info("Storefront initialized", map[string]interface{}{
		"operation":        "storefront_init",
		"api_base_url":     cfg.APIBaseURL,
		"storage_provider": cfg.Storage.Provider,
		"telemetry":        cfg.Telemetry.Enabled,
	})
	return sf, nil
}

func newStorage(cfg *core.Config, logger core.Logger) (core.Storage, error) {
	switch cfg.Storage.Provider {
	case "", "memory":
		store := core.NewMemoryStore()
		store.SetLogger(logger)
		return store, nil
	case "file":
		return core.NewFileStore(cfg.Storage.Path)
	case "redis":
		return core.NewRedisStore(core.RedisStoreOptions{
			RedisURL:  cfg.Storage.RedisURL,
			Namespace: cfg.Storage.Namespace,
			Logger:    logger,
		})
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

// OnNavigate registers the navigation hook invoked when the session expires
// mid-call. The embedding UI supplies it; without one, expiry only clears
// the session.
func (sf *Storefront) OnNavigate(fn func(url string)) {
	sf.navMu.Lock()
	sf.navigate = fn
	sf.navMu.Unlock()
}

// sessionExpired runs on any 401: clear the session, then send the user to
// the login page.
func (sf *Storefront) sessionExpired() {
	sf.logger.Warn("Session expired", map[string]interface{}{
		"operation": "session_expired",
	})
	sf.Session.Logout()

	sf.navMu.Lock()
	nav := sf.navigate
	sf.navMu.Unlock()
	if nav != nil {
		nav(sf.cfg.LoginURL)
	}
}

type authResponse struct {
	Token string `json:"token"`
}

// Login authenticates, installs the session token and replays the guest
// cart into the server cart. A non-nil PartialError reports guest lines
// that failed to transfer; the login itself still succeeded.
func (sf *Storefront) Login(ctx context.Context, email, password string) (*core.PartialError, error) {
	var out authResponse
	err := sf.API.DoInto(ctx, api.Request{
		Endpoint: api.EndpointLogin,
		Body: map[string]string{
			"email":    email,
			"password": password,
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	sf.Session.Login(out.Token)
	return sf.Cart.MigrateGuestCart(ctx)
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// Register creates the account and logs it straight in, migrating the guest
// cart like Login does.
func (sf *Storefront) Register(ctx context.Context, in RegisterInput) (*core.PartialError, error) {
	var out authResponse
	err := sf.API.DoInto(ctx, api.Request{
		Endpoint: api.EndpointRegister,
		Body:     in,
	}, &out)
	if err != nil {
		return nil, err
	}
	sf.Session.Login(out.Token)
	return sf.Cart.MigrateGuestCart(ctx)
}

// Logout clears the session. The cart store observes the transition and
// falls back to guest mode, retaining the current lines locally.
func (sf *Storefront) Logout() {
	sf.Session.Logout()
}

// ForgotPassword requests a reset email.
func (sf *Storefront) ForgotPassword(ctx context.Context, email string) error {
	return sf.API.DoInto(ctx, api.Request{
		Endpoint: api.EndpointForgotPassword,
		Body:     map[string]string{"email": email},
	}, nil)
}

// ResetPassword completes the reset flow with the emailed token.
func (sf *Storefront) ResetPassword(ctx context.Context, token, newPassword string) error {
	return sf.API.DoInto(ctx, api.Request{
		Endpoint: api.EndpointResetPassword,
		Body: map[string]string{
			"token":        token,
			"new_password": newPassword,
		},
	}, nil)
}

// Close releases held resources: flushes telemetry and closes the storage
// backend when it holds connections.
func (sf *Storefront) Close(ctx context.Context) error {
	var firstErr error
	if sf.telemetry != nil {
		if err := sf.telemetry.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if closer, ok := sf.storage.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
