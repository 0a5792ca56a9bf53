package main

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	s3archive "orderScope/internal/archive/s3"
	"orderScope/internal/cache/local"
	rediscache "orderScope/internal/cache/redis"
	"orderScope/internal/cancel"
	"orderScope/internal/chain"
	"orderScope/internal/config"
	"orderScope/internal/exchange"
	"orderScope/internal/fillability"
	"orderScope/internal/indexer"
	"orderScope/internal/model"
	"orderScope/internal/nonce"
	"orderScope/internal/orderbook"
	"orderScope/internal/royalty"
	"orderScope/internal/settlement"
	"orderScope/internal/storage/memory"
	"orderScope/internal/storage/postgres"
	"orderScope/internal/tokenset"
)

// orderStore is everything the commands need from persistence. Both the
// Postgres and the in-memory store satisfy it.
type orderStore interface {
	orderbook.Store
	cancel.Store
	fillability.NonceStore
	fillability.OrderStore
	tokenset.Store
	tokenset.FlagSource
	nonce.Store
	royalty.RoyaltyStore
	royalty.AttributionStore
	indexer.FillStore
	indexer.StateStore
	SetCollectionRoyalties(ctx context.Context, contract common.Address, recipients []model.RoyaltyRecipient) error
	SetTokenFlag(ctx context.Context, contract common.Address, tokenID *big.Int, flagged bool) error
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (orderStore, func(), error) {
	if cfg.PGDSN == "" {
		logger.Warn("pg-dsn not set, using in-memory store")
		return memory.NewStore(), func() {}, nil
	}
	store, err := postgres.NewStore(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, nil, err
	}
	if cfg.RunMigrations {
		if err := store.RunMigrations(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
	}
	return store, store.Close, nil
}

// app holds the wired components shared by the subcommands.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	chain *chain.Client
	store orderStore
	locks *rediscache.LockManager

	cache        settlement.Cache
	notifier     orderbook.Notifier
	archive      *s3archive.Archive
	locker       nonce.Locker
	reservations nonce.Reservations

	addresses   protocolAddresses
	registry    *exchange.Registry
	events      *exchange.DecoderSet
	txEvents    *exchange.DecoderSet
	counters    *exchange.Counters
	verifier    *fillability.Verifier
	processor   *orderbook.Processor
	tracker     *cancel.Tracker
	collector   *settlement.Collector
	engine      *royalty.Engine
	revalidator *fillability.Revalidator
	allocator   *nonce.Allocator
	closers     []func()
}

type protocolAddresses struct {
	seaport        common.Address
	zeroEx         common.Address
	zora           common.Address
	transferHelper common.Address
	filterRegistry common.Address
	weth           common.Address
}

// named maps order kinds to their exchange contract for --address.
func (a protocolAddresses) named() map[string]common.Address {
	return map[string]common.Address{
		string(model.KindSeaport):  a.seaport,
		string(model.KindZeroExV4): a.zeroEx,
		string(model.KindZoraV3):   a.zora,
	}
}

// exchanges lists the configured exchange contracts the runner watches.
func (a protocolAddresses) exchanges() []common.Address {
	var out []common.Address
	for _, addr := range []common.Address{a.seaport, a.zeroEx, a.zora} {
		if addr != (common.Address{}) {
			out = append(out, addr)
		}
	}
	return out
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	addrs, err := parseAddresses(cfg.Protocols)
	if err != nil {
		return nil, err
	}
	a.addresses = addrs

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	a.chain = chainClient
	a.closers = append(a.closers, chainClient.Close)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	if err := a.openServices(ctx); err != nil {
		return nil, err
	}
	if err := a.build(ctx); err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// openServices connects Redis and S3 when configured and falls back to
// in-process implementations otherwise.
func (a *app) openServices(ctx context.Context) error {
	cfg := a.cfg
	a.notifier = orderbook.NopNotifier{}
	a.locker = nonce.NewLocalLocker()
	a.reservations = nonce.NewLocalReservations()
	a.cache = local.NewJSONCache(0)

	if cfg.Redis.Addr != "" {
		client, err := rediscache.New(ctx, rediscache.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })

		a.locks = rediscache.NewLockManager(client)
		a.cache = rediscache.NewJSONCache(client)
		a.notifier = rediscache.NewUpdatePublisher(client, "")
		a.locker = a.locks
		a.reservations = rediscache.NewNonceReservations(client, cfg.NonceLockTTL*10)
	} else {
		a.logger.Info("redis not configured, using in-process locks and cache, no update stream")
	}

	if cfg.S3.Bucket != "" {
		archive, err := s3archive.New(ctx, s3archive.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return err
		}
		a.archive = archive
	}
	return nil
}

func (a *app) build(ctx context.Context) error {
	cfg := a.cfg
	addrs := a.addresses
	logger := a.logger

	currencies, err := a.currencies(ctx)
	if err != nil {
		return err
	}
	conduits, err := cfg.Protocols.Conduits()
	if err != nil {
		return err
	}
	wallets, err := cfg.Protocols.Wallets()
	if err != nil {
		return err
	}

	a.registry = exchange.NewRegistry(
		exchange.NewSeaport(exchange.SeaportConfig{ChainID: cfg.ChainID, Exchange: addrs.seaport, Conduits: conduits, Currencies: currencies}),
		exchange.NewZeroEx(exchange.ZeroExConfig{ChainID: cfg.ChainID, Exchange: addrs.zeroEx, Currencies: currencies}),
		exchange.NewZora(exchange.ZoraConfig{Exchange: addrs.zora, TransferHelper: addrs.transferHelper, Currencies: currencies}),
	)

	seaportEvents, err := exchange.NewSeaportDecoder(addrs.seaport)
	if err != nil {
		return err
	}
	zeroExEvents, err := exchange.NewZeroExDecoder(addrs.zeroEx)
	if err != nil {
		return err
	}
	zoraEvents, err := exchange.NewZoraDecoder(addrs.zora)
	if err != nil {
		return err
	}
	mints, err := exchange.NewMintDecoder()
	if err != nil {
		return err
	}
	a.events = exchange.NewDecoderSet(seaportEvents, zeroExEvents, zoraEvents)
	a.txEvents = exchange.NewDecoderSet(seaportEvents, zeroExEvents, zoraEvents, mints)

	a.counters = exchange.NewCounters(a.chain, addrs.seaport)
	a.verifier = fillability.NewVerifier(a.chain, a.store, a.counters, a.registry, logger.Named("fillability"))

	var archive orderbook.Archiver
	if a.archive != nil {
		archive = a.archive
	}
	a.processor = orderbook.NewProcessor(orderbook.ProcessorConfig{
		Canonicalizer: a.registry,
		TokenSets:     tokenset.NewResolver(a.store, a.store, logger.Named("tokenset")),
		Verifier:      a.verifier,
		Filter:        exchange.NewOperatorFilter(a.chain, addrs.filterRegistry),
		Store:         a.store,
		Notifier:      a.notifier,
		Archive:       archive,
		Concurrency:   cfg.Concurrency,
		Logger:        logger.Named("orderbook"),
	})
	if err := a.processor.Validate(); err != nil {
		return err
	}

	a.tracker = cancel.NewTracker(a.store, a.notifier, logger.Named("cancel"))
	a.revalidator = fillability.NewRevalidator(a.verifier, a.store, a.notifier, cfg.Concurrency, logger.Named("revalidate"))

	a.collector = settlement.NewCollector(a.chain, a.txEvents, a.cache, cfg.CacheTTL, logger.Named("settlement"))
	a.engine = royalty.NewEngine(
		royalty.NewCachedTraces(a.chain, a.cache, cfg.CacheTTL, logger.Named("traces")),
		a.collector,
		royalty.NewRegistry(a.store, a.chain, logger.Named("royalties")),
		a.store,
		royalty.Config{
			MarketplaceWallets:    wallets,
			WrappedNative:         addrs.weth,
			CandidateThresholdBps: cfg.CandidateThresholdBps,
		},
		logger.Named("royalty"),
	)

	a.allocator = nonce.NewAllocator(a.locker, a.store, a.reservations, a.counters, nonce.Config{
		Wait:    cfg.NonceWait,
		LockTTL: cfg.NonceLockTTL,
	}, logger.Named("nonce"))

	return nil
}

// currencies parses the payment-token allow-list. Tokens listed without
// decimals have them read from the token contract.
func (a *app) currencies(ctx context.Context) (exchange.Currencies, error) {
	configured := a.cfg.Protocols.Currencies
	if len(configured) == 0 {
		return exchange.Currencies{common.Address{}: 18, a.addresses.weth: 18}, nil
	}

	values := make(map[string]string, len(configured))
	for addr, decimals := range configured {
		values[addr] = decimals
		if strings.TrimSpace(decimals) != "" || !common.IsHexAddress(addr) {
			continue
		}
		token := common.HexToAddress(addr)
		if token == (common.Address{}) {
			continue
		}
		onchain, err := a.chain.ERC20Decimals(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("decimals of %s: %w", token.Hex(), err)
		}
		values[addr] = strconv.Itoa(int(onchain))
	}
	return exchange.ParseCurrencies(values)
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func parseAddresses(p config.Protocols) (protocolAddresses, error) {
	var out protocolAddresses
	fields := []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"seaport exchange", p.SeaportExchange, &out.seaport},
		{"zeroex exchange", p.ZeroExExchange, &out.zeroEx},
		{"zora exchange", p.ZoraExchange, &out.zora},
		{"zora transfer helper", p.ZoraTransferHelper, &out.transferHelper},
		{"operator filter registry", p.OperatorFilterRegistry, &out.filterRegistry},
		{"weth", p.WrappedNative, &out.weth},
	}
	for _, f := range fields {
		addr, err := config.Address(f.name, f.value)
		if err != nil {
			return protocolAddresses{}, err
		}
		*f.dst = addr
	}
	return out, nil
}
