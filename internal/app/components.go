// Package app wires the ledger services shared by the api and cron-worker
// binaries.
package app

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/marginledger-backend/internal/margins"
	"github.com/angelmondragon/marginledger-backend/internal/orders"
	"github.com/angelmondragon/marginledger-backend/internal/orderstatus"
	"github.com/angelmondragon/marginledger-backend/internal/ordersync"
	"github.com/angelmondragon/marginledger-backend/internal/rtorates"
	"github.com/angelmondragon/marginledger-backend/internal/stores"
	"github.com/angelmondragon/marginledger-backend/internal/wallet"
	"github.com/angelmondragon/marginledger-backend/pkg/config"
	"github.com/angelmondragon/marginledger-backend/pkg/db"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
	"github.com/angelmondragon/marginledger-backend/pkg/metrics"
	"github.com/angelmondragon/marginledger-backend/pkg/outbox"
	"github.com/angelmondragon/marginledger-backend/pkg/storefront"
)

type Params struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Metrics *metrics.LedgerMetrics
}

// Components holds every service built on top of the database.
type Components struct {
	Stores      stores.Service
	Orders      orders.Service
	Margins     margins.Service
	Rates       rtorates.Service
	Wallet      wallet.Service
	OrderWallet *wallet.OrderWallet
	Statuses    orderstatus.Service
	Overview    *wallet.OverviewReader
	Sync        *ordersync.Coordinator
	Outbox      *outbox.Repository
	Platform    *storefront.Client
}

func Build(p Params) (*Components, error) {
	if p.Config == nil {
		return nil, errors.New("config is required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if p.DB == nil {
		return nil, errors.New("database client is required")
	}
	if p.Metrics == nil {
		return nil, errors.New("ledger metrics are required")
	}
	gdb := p.DB.DB()

	storeService, err := stores.NewService(stores.NewRepository(gdb))
	if err != nil {
		return nil, fmt.Errorf("stores service: %w", err)
	}
	walletService, err := wallet.NewService(wallet.NewRepository(gdb), p.DB, p.Config.Wallet)
	if err != nil {
		return nil, fmt.Errorf("wallet service: %w", err)
	}
	orderService, err := orders.NewService(orders.NewRepository(gdb), walletService)
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}
	marginService, err := margins.NewService(margins.NewRepository(gdb))
	if err != nil {
		return nil, fmt.Errorf("margins service: %w", err)
	}
	rateService, err := rtorates.NewService(rtorates.NewRepository(gdb), storeService, p.DB)
	if err != nil {
		return nil, fmt.Errorf("rto rate service: %w", err)
	}
	orderWallet, err := wallet.NewOrderWallet(walletService, marginService, rateService, p.Metrics, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("order wallet: %w", err)
	}

	platform := storefront.NewClient(p.Config.Storefront, storefront.WithFetchRecorder(p.Metrics))
	outboxRepo := outbox.NewRepository(gdb)

	statusService, err := orderstatus.NewService(orderstatus.ServiceParams{
		Overrides:   orderstatus.NewRepository(gdb),
		Orders:      orderService,
		Connections: storeService,
		Platform:    platform,
		Ledger:      orderWallet,
		Retries:     outbox.NewService(outboxRepo, p.Logger),
		Tx:          p.DB,
		Logger:      p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("order status service: %w", err)
	}

	overview, err := wallet.NewOverviewReader(walletService, orderService, statusService, marginService, rateService)
	if err != nil {
		return nil, fmt.Errorf("wallet overview: %w", err)
	}

	coordinator, err := ordersync.NewCoordinator(ordersync.CoordinatorParams{
		Stores:   storeService,
		Fetcher:  platform,
		Orders:   orderService,
		Statuses: statusService,
		Metrics:  p.Metrics,
		Logger:   p.Logger,
		Config:   p.Config.Sync,
	})
	if err != nil {
		return nil, fmt.Errorf("sync coordinator: %w", err)
	}

	return &Components{
		Stores:      storeService,
		Orders:      orderService,
		Margins:     marginService,
		Rates:       rateService,
		Wallet:      walletService,
		OrderWallet: orderWallet,
		Statuses:    statusService,
		Overview:    overview,
		Sync:        coordinator,
		Outbox:      outboxRepo,
		Platform:    platform,
	}, nil
}
