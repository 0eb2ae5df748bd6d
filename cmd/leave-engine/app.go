package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/events"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/store/postgres"
	"github.com/warp/leave-engine/store/redislock"
	"github.com/warp/leave-engine/store/sqlite"
	"go.uber.org/zap"
)

// storage is what every store driver provides.
type storage interface {
	generic.Store
	leave.RequestStore
	leave.LeaveTypeCatalog
	leave.BalanceStore
	leave.Directory
	leave.CompanyCalendar
	factory.Target
}

// app holds the wired services and everything that needs closing.
type app struct {
	Store     storage
	Ledger    *leave.BalanceLedger
	Workflow  *leave.Workflow
	Bulk      *leave.BulkCoordinator
	Overview  *leave.Overview
	Reminders *leave.Reminders

	closers []func() error
	logger  *zap.Logger
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{logger: logger}

	s, err := openStore(ctx, cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = s

	var locks generic.Locker = generic.NewKeyedMutex()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		locks = redislock.New(client, redislock.Options{TTL: cfg.LockTTL}, logger)
		logger.Info("using redis locks", zap.String("addr", cfg.RedisAddr))
	}

	var (
		cal      leave.CalendarSync
		notifier leave.NotificationSender
	)
	if len(cfg.KafkaBrokers) > 0 {
		writer := events.NewWriter(cfg.KafkaBrokers)
		publisher := events.NewKafkaPublisher(writer, logger)
		a.closers = append(a.closers, publisher.Close)
		cal = calendar.NewKafkaSync(publisher, cfg.KafkaCalendarTopic)
		notifier = notify.NewKafkaSender(publisher, cfg.KafkaNotificationTopic)
		logger.Info("publishing to kafka", zap.Strings("brokers", cfg.KafkaBrokers))
	} else {
		cal = calendar.NewMemory()
		notifier = notify.New(notify.SMTPConfig{
			Enabled:  cfg.EmailEnabled,
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			UseTLS:   cfg.SMTPUseTLS,
			From:     cfg.EmailFrom,
		}, logger)
	}

	a.Ledger = leave.NewBalanceLedger(s, generic.NewLedger(s), locks, logger)

	if err := loadCatalog(ctx, cfg, s, a.Ledger, logger); err != nil {
		a.Close()
		return nil, err
	}

	validator := leave.NewValidator()
	validator.ShortNoticeDays = cfg.ShortNoticeDays
	validator.ExpiryWarningDays = cfg.ExpiryWarningDays

	a.Workflow = leave.NewWorkflow(leave.Deps{
		Requests:   s,
		LeaveTypes: s,
		Balances:   s,
		Ledger:     a.Ledger,
		Directory:  s,
		Conflicts:  leave.NewConflictDetector(s, s, s),
		Calendar:   cal,
		Notifier:   notifier,
		Locks:      locks,
		Validator:  validator,
	}, logger)
	a.Bulk = leave.NewBulkCoordinator(a.Workflow, cfg.BulkMaxSize, logger)
	a.Overview = leave.NewOverview(s, s, s, cfg.ExpiryWarningDays)
	a.Reminders = leave.NewReminders(s, s, s, s, notifier, leave.ReminderConfig{
		PendingAfter:     cfg.ReminderAfter,
		RepeatAfter:      cfg.ReminderRepeat,
		ExpiryWindowDays: cfg.ExpiryWarningDays,
	}, logger)

	return a, nil
}

func openStore(ctx context.Context, cfg config.Config, a *app) (storage, error) {
	switch cfg.DBDriver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.PoolConfig{})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		s := postgres.New(pool)
		a.closers = append(a.closers, func() error { s.Close(); return nil })
		return s, nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}

// loadCatalog applies the configured catalog file, or the built-in
// leave types when none is set.
func loadCatalog(ctx context.Context, cfg config.Config, s storage, ledger *leave.BalanceLedger, logger *zap.Logger) error {
	catalog := factory.Defaults()
	if cfg.LeaveTypesFile != "" {
		loaded, err := factory.LoadFile(cfg.LeaveTypesFile)
		if err != nil {
			return fmt.Errorf("load catalog %s: %w", cfg.LeaveTypesFile, err)
		}
		catalog = loaded
	}
	if err := catalog.Apply(ctx, s, ledger); err != nil {
		return err
	}
	logger.Info("catalog loaded",
		zap.String("file", cfg.LeaveTypesFile),
		zap.Int("leave_types", len(catalog.LeaveTypes)),
		zap.Int("company_days", len(catalog.CompanyDays)),
		zap.Int("employees", len(catalog.Employees)),
		zap.Int("balances", len(catalog.Balances)),
	)
	return nil
}
