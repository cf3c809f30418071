package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/avdeevlv/erp_backend/internal/config"
	"github.com/avdeevlv/erp_backend/internal/es"
	"github.com/avdeevlv/erp_backend/internal/handlers"
	"github.com/avdeevlv/erp_backend/internal/inventory"
	"github.com/avdeevlv/erp_backend/internal/logging"
	"github.com/avdeevlv/erp_backend/internal/loggingmw"
	authmw "github.com/avdeevlv/erp_backend/internal/middleware/auth"
	"github.com/avdeevlv/erp_backend/internal/models"
	"github.com/avdeevlv/erp_backend/internal/mykafka"
	"github.com/avdeevlv/erp_backend/internal/notify"
	"github.com/avdeevlv/erp_backend/internal/orders"
	"github.com/avdeevlv/erp_backend/internal/payments"
	httpserver "github.com/avdeevlv/erp_backend/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	jwtSecret := []byte(configuration.JWT_SECRET)
	refreshSecret := []byte(configuration.REFRESH_SECRET)

	brokers := []string{configuration.KAFKA_ADDRESS}
	topics := []string{
		notify.TopicOrderEvents,
		notify.TopicPaymentEvents,
		notify.TopicProductEvents,
		notify.TopicUserEvents,
	}
	prod, err := mykafka.NewProducer(brokers, topics)
	if err != nil {
		log.Fatal(err)
	}
	sink := &notify.KafkaSink{Producer: prod}

	esClient, err := es.NewClient(configuration)
	if err != nil {
		logger.Warn("elasticsearch unavailable, search disabled", "error", err)
		esClient = nil
	}

	ledger := &inventory.Ledger{DB: db}
	orderSvc := &orders.Service{DB: db, Ledger: ledger, Sink: sink}
	paymentSvc := &payments.Service{
		DB:   db,
		Sink: sink,
		Gateways: payments.Gateways{
			models.PaymentMethodStripe: payments.NewStripeGateway(configuration.STRIPE_URL, configuration.STRIPE_KEY),
			models.PaymentMethodPayPal: payments.NewPayPalGateway(configuration.PAYPAL_URL, configuration.PAYPAL_KEY),
			models.PaymentMethodMaya:   payments.NewMayaGateway(configuration.MAYA_URL, configuration.MAYA_KEY),
		},
	}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), loggingmw.RequestLogger(logger))

	deps := httpserver.Deps{
		DB:              db,
		AuthHandler:     &handlers.AuthHandler{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret, Sink: sink},
		ProductHandler:  &handlers.ProductHandler{DB: db, Ledger: ledger, Sink: sink, ES: esClient, Index: "product"},
		CustomerHandler: &handlers.CustomerHandler{DB: db},
		OrderHandler:    &handlers.OrderHandler{DB: db, Svc: orderSvc},
		PaymentHandler:  &handlers.PaymentHandler{DB: db, Svc: paymentSvc},
		SearchHandler:   handlers.NewSearchHandler(esClient, "product"),
		ServiceHandler:  &authmw.TokenService{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret},
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
