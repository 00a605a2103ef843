package main

import (
	"context"
	"log"
	"log/slog"
	"math/big"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	httpadp "lendfact-backend/internal/adapter/http"
	mw "lendfact-backend/internal/adapter/middleware"
	"lendfact-backend/internal/adapter/repository/mysql"
	"lendfact-backend/internal/asset"
	"lendfact-backend/internal/config"
	"lendfact-backend/internal/domain/fees"
	loanDomain "lendfact-backend/internal/domain/loan"
	"lendfact-backend/internal/domain/manager"
	"lendfact-backend/internal/infrastructure/cache"
	"lendfact-backend/internal/infrastructure/db"
	"lendfact-backend/internal/pricefeed"
	"lendfact-backend/internal/token"
	adminuc "lendfact-backend/internal/usecase/admin"
	loanuc "lendfact-backend/internal/usecase/loan"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	gdb, err := db.OpenGorm(cfg.MySQLDSN())
	if err != nil {
		log.Fatal(err)
	}
	if err := gdb.AutoMigrate(&loanDomain.Loan{}, &fees.Entry{}); err != nil {
		log.Fatal(err)
	}

	rdb, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		log.Fatal(err)
	}

	loans := mysql.NewLoanRepository(gdb)
	tx := mysql.NewGormUoW(gdb)

	managers := manager.NewSet(cfg.OwnerAccount)
	policy, err := fees.NewPolicy(cfg.ProtocolFeeBps)
	if err != nil {
		log.Fatal(err)
	}

	receipts := token.NewRegistry()
	active, err := loans.ListActive(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	receipts.Hydrate(active)

	var oracle pricefeed.Oracle
	if cfg.OracleURL != "" {
		oracle, err = pricefeed.NewHTTPOracle(cfg.OracleURL, cfg.OracleDecimals)
		if err != nil {
			log.Fatal(err)
		}
	} else {
		price, ok := new(big.Int).SetString(cfg.OracleFixedPrice, 10)
		if !ok {
			log.Fatalf("invalid ORACLE_FIXED_PRICE %q", cfg.OracleFixedPrice)
		}
		oracle = &pricefeed.FixedOracle{Price: price, Scale: cfg.OracleDecimals}
	}
	conv := pricefeed.NewConverter(oracle)

	var (
		tokens asset.TokenTransferor
		native asset.NativeTransferor
	)
	if cfg.ChainRPCURL != "" {
		rpcTransferor, err := asset.NewRPCTransferor(cfg.ChainRPCURL, cfg.EngineAccount)
		if err != nil {
			log.Fatal(err)
		}
		tokens, native = rpcTransferor, rpcTransferor
	} else {
		tokens = asset.NewLedgerTransferor(cfg.EngineAccount)
		native = asset.NewNativeLedger(cfg.EngineAccount)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	loanUC := loanuc.NewUsecase(loanuc.Deps{
		Account:   cfg.EngineAccount,
		Loans:     loans,
		UoW:       tx,
		Converter: conv,
		Tokens:    tokens,
		Native:    native,
		Receipts:  receipts,
		Managers:  managers,
		FeePolicy: policy,
		Logger:    logger,
	})
	adminUC := adminuc.NewUsecase(managers, policy, tx, tokens, native, logger)

	h := httpadp.NewHandler()
	lh := httpadp.NewLoanHandler(loanUC)
	ah := httpadp.NewAdminHandler(adminUC, loanUC)

	e := echo.New()
	e.HideBanner = true
	e.Validator = httpadp.NewValidator()
	e.Use(middleware.Logger(), middleware.Recover())

	e.GET("/health", h.Health)
	e.GET("/price", lh.CurrentPrice)

	idemp := mw.IdempotencyMiddleware(rdb, time.Duration(cfg.IdempTTLSecs)*time.Second)

	loansG := e.Group("/loans")
	loansG.POST("", lh.RequestLoan, idemp)
	loansG.GET("/pending", lh.PendingLoans)
	loansG.GET("/:id", lh.GetLoan)
	loansG.GET("/:id/total-due", lh.TotalDue)
	loansG.GET("/:id/payoff-amount", lh.PayoffAmount)
	loansG.POST("/:id/accept", lh.AcceptLoan, idemp)
	loansG.POST("/:id/reject", lh.RejectLoan)
	loansG.POST("/:id/pay", lh.PayLoan, idemp)
	loansG.POST("/:id/pay-native", lh.PayLoanNative, idemp)
	loansG.POST("/:id/payoff", lh.PayoffLoan, idemp)
	loansG.POST("/:id/payoff-native", lh.PayoffLoanNative, idemp)

	adminG := e.Group("/admin")
	adminG.GET("/managers", ah.ListManagers)
	adminG.GET("/managers/:account", ah.IsManager)
	adminG.POST("/managers", ah.AddManager)
	adminG.DELETE("/managers/:account", ah.RemoveManager)
	adminG.GET("/protocol-fee", ah.GetProtocolFee)
	adminG.PUT("/protocol-fee", ah.SetProtocolFee)
	adminG.POST("/fees/withdraw", ah.WithdrawFees)
	adminG.POST("/fees/withdraw-native", ah.WithdrawNativeFees)
	adminG.PUT("/loans/:id/terms", ah.UpdateLoanTerms)
	adminG.POST("/loans/:id/cancel", ah.CancelLoanRequest)
	adminG.POST("/loans/:id/force-complete", ah.ForceCompleteLoan)
	adminG.POST("/loans/:id/force-delete", ah.ForceDeleteLoan)

	addr := ":" + cfg.AppPort
	log.Printf("listening on %s", addr)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
