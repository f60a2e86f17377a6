package main

import (
	"log"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	httpadp "loanledger/internal/adapter/http"
	appmw "loanledger/internal/adapter/middleware"
	"loanledger/internal/adapter/repository/mysql"
	"loanledger/internal/config"
	"loanledger/internal/domain/account"
	"loanledger/internal/domain/audit"
	"loanledger/internal/domain/idempotency"
	"loanledger/internal/domain/installment"
	"loanledger/internal/domain/loan"
	"loanledger/internal/domain/notification"
	"loanledger/internal/domain/payment"
	"loanledger/internal/engine/auth"
	"loanledger/internal/engine/coordinator"
	"loanledger/internal/engine/credit"
	"loanledger/internal/engine/disbursement"
	"loanledger/internal/engine/encryption"
	"loanledger/internal/engine/loanstate"
	"loanledger/internal/engine/notify"
	"loanledger/internal/engine/refund"
	"loanledger/internal/engine/repayment"
	"loanledger/internal/infrastructure/cache"
	"loanledger/internal/infrastructure/db"
	wsinfra "loanledger/internal/infrastructure/notify"
	"loanledger/internal/infrastructure/provider"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	gormDB, err := db.OpenGorm(cfg.MySQLDSN())
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	if err := migrate(gormDB); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	redisClient, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}

	// repositories
	uow := mysql.NewGormUoW(gormDB)
	loans := mysql.NewLoanRepository(gormDB)
	installments := mysql.NewInstallmentRepository(gormDB)
	payments := mysql.NewPaymentRepository(gormDB)
	accounts := mysql.NewAccountRepository(gormDB)
	notifications := mysql.NewNotificationRepository(gormDB)
	idemRecords := mysql.NewIdempotencyRepository(gormDB)

	// notification hub: durable persist first, then live websocket push
	wsHub := wsinfra.NewWSHub()
	presence := wsinfra.NewRedisPresence(redisClient)
	hub := notify.New(notifications, accounts, wsHub, presence)

	// payment rail
	rail := provider.NewSimulator(0)

	// engines
	state := loanstate.New(uow)
	disb := disbursement.New(uow, rail, hub)
	repay := repayment.New(uow, rail, hub)
	rf := refund.New(uow, rail, hub)
	creditEngine := credit.New(accounts, credit.BoundedScorer{})

	co := coordinator.New(idemRecords, time.Duration(cfg.IdempTTLSecs)*time.Second)
	verifier := auth.NewHMACVerifier(cfg.AuthSigningSecret, time.Duration(cfg.AuthTokenTTLSecs)*time.Second)

	var enc encryption.Encryptor = encryption.NoOp{}
	if cfg.EncryptionKeyHex != "" {
		aead, err := encryption.NewAESGCM(cfg.EncryptionKeyHex)
		if err != nil {
			log.Fatalf("encryption key: %v", err)
		}
		enc = aead
	}

	// handlers
	v := httpadp.NewValidator()
	healthH := httpadp.NewHealthHandler()
	loanH := httpadp.NewLoanHandler(state, disb, loans, installments, payments, v)
	payH := httpadp.NewPaymentHandler(repay, rf, payments, v)
	notifH := httpadp.NewNotificationHandler(hub, wsHub)
	creditH := httpadp.NewCreditHandler(creditEngine)
	acctH := httpadp.NewAccountHandler(accounts, enc, verifier, cfg.OperatorCreationSecret, v)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = httpadp.HTTPErrorHandler
	e.Use(echomw.Logger(), echomw.Recover(), echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: cfg.AllowedOrigins}))

	e.GET("/health", healthH.Health)
	e.POST("/admin/accounts/operator", acctH.CreateOperator)

	authed := e.Group("", appmw.Authenticate(verifier))
	borrower := appmw.RequireRole(account.RoleBorrower)
	keyed := []echo.MiddlewareFunc{appmw.RequireIdempotencyKey(), appmw.Idempotent(co)}
	borrowerKeyed := append([]echo.MiddlewareFunc{borrower}, keyed...)

	authed.POST("/loans", loanH.Create, borrower)
	authed.GET("/loans", loanH.List)
	authed.GET("/loans/:id", loanH.Get)
	authed.GET("/loans/:id/history", loanH.History)
	authed.GET("/loans/:id/schedule", loanH.Schedule)
	authed.GET("/loans/:id/payments", loanH.Payments)
	authed.GET("/loans/:id/disbursement", loanH.Disbursement)
	authed.POST("/loans/:id/repay", payH.Repay, borrowerKeyed...)

	authed.POST("/payments/manual", payH.ManualSubmit, borrowerKeyed...)
	authed.POST("/payments/manual-with-receipt", payH.ManualWithReceipt, borrowerKeyed...)
	authed.GET("/payments", payH.List)

	authed.GET("/notifications", notifH.List)
	authed.GET("/notifications/unread-count", notifH.UnreadCount)
	authed.PATCH("/notifications/:id/read", notifH.MarkRead)
	authed.PATCH("/notifications/read-all", notifH.MarkAllRead)
	authed.GET("/notifications/stream", notifH.Stream)

	authed.GET("/credit/report", creditH.Report)
	authed.POST("/credit/check", creditH.Check)

	admin := authed.Group("/admin", appmw.RequireRole(account.RoleOperator))
	admin.POST("/loans/:id/review", loanH.Review, appmw.Idempotent(co))
	admin.POST("/loans/:id/approve", loanH.Approve, appmw.Idempotent(co))
	admin.POST("/loans/:id/reject", loanH.Reject, appmw.Idempotent(co))
	admin.POST("/loans/:id/disburse", loanH.Disburse, appmw.Idempotent(co))
	admin.POST("/loans/:id/default", loanH.Default, appmw.Idempotent(co))
	admin.POST("/payments/:id/verify", payH.Verify, appmw.Idempotent(co))
	admin.POST("/payments/:id/refund", payH.Refund, keyed...)
	admin.POST("/payments/:id/refund-overpayment", payH.RefundOverpayment, keyed...)

	addr := ":" + cfg.AppPort
	log.Printf("listening on %s", addr)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}

func migrate(g *gorm.DB) error {
	return g.AutoMigrate(
		&account.Account{},
		&loan.Loan{},
		&loan.StatusHistoryEntry{},
		&installment.Installment{},
		&payment.Payment{},
		&payment.InstallmentApplication{},
		&audit.Entry{},
		&notification.Notification{},
		&idempotency.Record{},
	)
}
