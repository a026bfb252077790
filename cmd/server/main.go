package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linemk/rcon-shop/internal/app"
	"github.com/linemk/rcon-shop/internal/app/handlers"
	"github.com/linemk/rcon-shop/internal/config"
	"github.com/linemk/rcon-shop/internal/domain/models"
	"github.com/linemk/rcon-shop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/rcon-shop/internal/lib/currency"
	"github.com/linemk/rcon-shop/internal/lib/logger"
	"github.com/linemk/rcon-shop/internal/lib/logger/handlers/urllog"
	"github.com/linemk/rcon-shop/internal/lib/ratelimit"
	"github.com/linemk/rcon-shop/internal/payment"
	"github.com/linemk/rcon-shop/internal/rcon"
	"github.com/linemk/rcon-shop/internal/service"
	"github.com/linemk/rcon-shop/internal/storage"
	"github.com/pkg/errors"
)

func main() {
	// загрузка конфигурации
	cfg := config.MustLoad()

	// инициализация логгера, зависит от настройки окружения
	log := logger.SetupLogger(cfg.Env)
	log.Info("starting app", slog.String("env", cfg.Env))

	// загружаем объект приложения, конфигом и подключениями к БД и Redis
	application, err := app.NewApp(log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.Close()

	conv := currency.NewConverter(cfg.Currency)

	// реализация слоев по работе с БД по каждому направлению
	productRepo := storage.NewProductRepository(application.DB)
	cartRepo := storage.NewCartRepository(application.DB)
	orderRepo := storage.NewOrderRepository(application.DB)

	proofs, err := storage.NewDiskProofStore(cfg.Uploads.Dir, cfg.Uploads.PublicPrefix)
	if err != nil {
		panic(errors.Wrap(err, "failed to initialize proof store"))
	}

	var replay storage.ReplayGuard = storage.NopReplayGuard{}
	if application.Redis != nil {
		replay = storage.NewRedisReplayGuard(application.Redis, cfg.Redis.ReplayTTL)
	}

	rconClient := rcon.NewClient(log, cfg.RCON)
	defer rconClient.Close()

	fulfiller := service.NewFulfiller(log, rconClient, orderRepo, productRepo, cfg.RCON.Timeout)
	reconciler := service.NewReconciler(log, application.DB, orderRepo, cartRepo, fulfiller)

	// провайдеры оплаты; ненастроенный провайдер отвечает ErrNotConfigured
	methods := []models.PaymentMethod{models.PaymentManual}

	var paypalAPI payment.PayPalAPI
	if cfg.PayPalEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := payment.NewPayPalClient(ctx, cfg.PayPal)
		cancel()
		if err != nil {
			log.Error("paypal is disabled", slog.Any("error", err))
		} else {
			paypalAPI = client
			methods = append(methods, models.PaymentPayPal)
		}
	}
	paypalProvider := payment.NewPayPal(paypalAPI, cfg.PayPal)

	var stripeAPI payment.StripeAPI
	if cfg.StripeEnabled() {
		stripeAPI = payment.NewStripeClient(cfg.Stripe.SecretKey)
		methods = append(methods, models.PaymentStripe)
	}
	stripeProvider := payment.NewStripe(stripeAPI, conv, cfg.Stripe.PublishableKey)

	ecpayProvider := payment.NewECPay(cfg.ECPay)
	if cfg.ECPayEnabled() {
		methods = append(methods, models.PaymentECPayATM, models.PaymentECPayCVS)
	}

	authService := service.NewAuthService(log, cfg.Admin.PasswordHash, cfg.JWT.AdminSecret, time.Duration(cfg.JWT.AdminTokenTTL)*time.Minute)
	infoService := service.NewInfoService(log, productRepo, conv, methods)
	cartService := service.NewCartService(log, cartRepo, productRepo)
	checkoutService := service.NewCheckoutService(log, cartService, reconciler, orderRepo, proofs, conv)
	orderService := service.NewOrderService(log, orderRepo)
	paypalService := service.NewPayPalService(log, paypalProvider, cartService, reconciler, orderRepo, conv)
	stripeService := service.NewStripeService(log, stripeProvider, cartService, reconciler, orderRepo, conv)
	ecpayService := service.NewECPayService(log, ecpayProvider, cartService, reconciler, orderRepo, replay, conv)

	limiter := ratelimit.New(cfg.RateLimit)

	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)

	// публичные эндпоинты
	router.Get("/health", handlers.HealthHandler(log))
	router.Get("/api/products", handlers.ProductsHandler(log, infoService))
	router.Get("/api/currency/config", handlers.CurrencyConfigHandler(log, infoService))
	router.Get("/api/payment-methods", handlers.PaymentMethodsHandler(log, infoService))
	router.Post("/api/admin/login", handlers.AuthHandler(log, authService))
	router.Handle(cfg.Uploads.PublicPrefix+"/*", http.StripPrefix(cfg.Uploads.PublicPrefix, http.FileServer(http.Dir(cfg.Uploads.Dir))))

	// колбэки провайдеров приходят без JWT: доверие только по подписи или повторному запросу к провайдеру
	router.Group(func(r chi.Router) {
		r.Use(limiter.Middleware(log))
		r.Get("/api/paypal/config", handlers.PayPalConfigHandler(log, paypalService))
		r.Get("/api/stripe/config", handlers.StripeConfigHandler(log, stripeService))
		r.Get("/api/stripe/return", handlers.StripeReturnHandler(log, stripeService))
		r.Get("/api/ecpay/config", handlers.ECPayConfigHandler(log, ecpayService))
		r.Post("/api/ecpay/callback", handlers.ECPayCallbackHandler(log, ecpayService))
		r.Post("/api/ecpay/payment-info", handlers.ECPayPaymentInfoHandler(log, ecpayService))
	})

	// эндпоинты игрока
	router.Group(func(r chi.Router) {
		r.Use(jwtmiddleware.NewPlayerMiddleware(cfg.JWT.PlayerSecret))

		r.Get("/api/cart", handlers.CartHandler(log, cartService))
		r.Post("/api/cart", handlers.CartAddHandler(log, cartService))
		r.Put("/api/cart/{id}", handlers.CartUpdateHandler(log, cartService))
		r.Delete("/api/cart/{id}", handlers.CartRemoveHandler(log, cartService))

		r.Post("/api/uploads/payment-proof", handlers.UploadProofHandler(log, checkoutService, cfg.Uploads.MaxSize))
		r.Post("/api/orders/checkout", handlers.CheckoutHandler(log, checkoutService))
		r.Get("/api/orders", handlers.PlayerOrdersHandler(log, orderService))
		r.Get("/api/orders/{groupID}", handlers.PlayerOrderHandler(log, orderService))
		r.Post("/api/orders/{groupID}/proof", handlers.AttachProofHandler(log, checkoutService, cfg.Uploads.MaxSize))

		// оплата провайдерами ограничена по частоте
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware(log))
			r.Post("/api/paypal/create-order", handlers.PayPalCreateOrderHandler(log, paypalService))
			r.Post("/api/paypal/capture-order", handlers.PayPalCaptureHandler(log, paypalService))
			r.Post("/api/stripe/create-payment-intent", handlers.StripeCreateIntentHandler(log, stripeService))
			r.Post("/api/stripe/confirm-payment", handlers.StripeConfirmHandler(log, stripeService))
			r.Post("/api/ecpay/create-payment", handlers.ECPayCreatePaymentHandler(log, ecpayService))
		})
	})

	// эндпоинты администратора
	router.Group(func(r chi.Router) {
		r.Use(jwtmiddleware.NewAdminMiddleware(cfg.JWT.AdminSecret))

		r.Get("/api/admin/orders", handlers.AdminOrdersHandler(log, orderService))
		r.Get("/api/admin/orders/{groupID}", handlers.AdminOrderHandler(log, orderService))
		r.Post("/api/admin/items/{id}/approve", handlers.ApproveItemHandler(log, reconciler))
		r.Post("/api/admin/items/{id}/reject", handlers.RejectItemHandler(log, reconciler))
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address), slog.Any("paymentMethods", methods))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	stopSign := <-stop
	log.Info("received shutdown signal", slog.String("signal", stopSign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	log.Info("server gracefully stopped")
}
