package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/nacalab/editcore/internal/api"
	"github.com/nacalab/editcore/internal/autosave"
	"github.com/nacalab/editcore/internal/checkpoint"
	"github.com/nacalab/editcore/internal/config"
	"github.com/nacalab/editcore/internal/database"
	"github.com/nacalab/editcore/internal/devsync"
	"github.com/nacalab/editcore/internal/dispatcher"
	"github.com/nacalab/editcore/internal/history"
	"github.com/nacalab/editcore/internal/logging"
	"github.com/nacalab/editcore/internal/monitor"
	"github.com/nacalab/editcore/internal/netmon"
	"github.com/nacalab/editcore/internal/offline"
	"github.com/nacalab/editcore/internal/scene"
	"github.com/nacalab/editcore/internal/session"
	"github.com/nacalab/editcore/internal/snap"
	"github.com/nacalab/editcore/internal/store"
	"github.com/nacalab/editcore/internal/telemetry"

	intOtel "github.com/nacalab/editcore/internal/otel"
)

// version defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "editcore"
)

// global services
var (
	SlogManager *logging.SlogManager
	Logger      *slog.Logger

	OTelProvider *intOtel.Provider

	DBManager *database.Manager
	DataStore *store.Store

	SessionStartTime time.Time = time.Now()
)

func main() {
	if err := bootstrap(); err != nil {
		fmt.Fprintf(os.Stderr, "editcore: %v\n", err)
		os.Exit(1)
	}
	defer shutdownBase()

	args := os.Args[1:]
	if len(args) > 0 {
		if err := runCommand(args); err != nil {
			Logger.Error("Command failed", "command", args[0], "error", err)
			os.Exit(1)
		}
		return
	}

	runService()
}

// bootstrap brings up config, logging and the durable store. Shared by the
// long-running service and the one-shot CLI commands.
func bootstrap() error {
	if err := config.Load("."); err != nil {
		// Missing config file is fine, defaults apply.
		fmt.Fprintf(os.Stderr, "editcore: %v, using defaults\n", err)
	}

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	logFilePath := logging.LogFilePath(logsDir, AppName, SessionStartTime)
	logFile, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	if config.GetBool("otel.enabled") {
		otelLogPath := filepath.Join(logsDir, fmt.Sprintf("%s.otel.%s.log", AppName, SessionStartTime.Format("20060102_150405")))
		otelLogFile, err := os.OpenFile(otelLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("opening otel log file: %w", err)
		}
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      true,
			ServiceName:  AppName,
			BatchTimeout: 5 * time.Second,
			LogWriter:    otelLogFile,
			Endpoint:     config.GetString("otel.endpoint"),
			Insecure:     config.GetBool("otel.insecure"),
		})
		if err != nil {
			return fmt.Errorf("initializing otel: %w", err)
		}
	} else {
		OTelProvider, _ = intOtel.New(intOtel.Config{Enabled: false})
	}

	graylogAddr := ""
	if config.GetBool("graylog.enabled") {
		graylogAddr = config.GetString("graylog.address")
	}

	SlogManager = logging.NewSlogManager()
	if err := SlogManager.Setup(logFile, config.GetString("logLevel"), OTelProvider.LoggerProvider(), graylogAddr); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	Logger = SlogManager.Logger()
	Logger.Info("Starting up", "version", CurrentVersion, "buildDate", BuildDate)

	zlog := zerolog.New(logFile).With().Timestamp().Logger()
	DBManager = database.NewManager(zlog)
	DBManager.SqliteFilePath = config.GetString("db.sqlitePath")
	if err := DBManager.Connect(); err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	if err := DBManager.Setup(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	DataStore = store.New(DBManager.DB, Logger)

	return nil
}

func shutdownBase() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if SlogManager != nil {
		_ = SlogManager.Flush(ctx)
	}
	if OTelProvider != nil {
		_ = OTelProvider.Shutdown(ctx)
	}
	if DBManager != nil {
		_ = DBManager.Close()
	}
}

// runService wires the full editing-session stack and blocks until a signal.
func runService() {
	client := api.New(config.GetString("api.serverUrl"), config.GetString("api.communityId"))

	probeInterval := time.Duration(config.GetInt("netmon.probeIntervalSec")) * time.Second
	mon := netmon.NewProbing(client, probeInterval)
	mon.Start()
	defer mon.Stop()

	queue, err := offline.New(DataStore, nil, mon, nil, Logger)
	if err != nil {
		Logger.Error("Failed to initialize offline queue", "error", err)
		return
	}
	defer queue.Close()

	auto := autosave.New(client, queue, mon, nil, Logger, autosave.Config{
		Debounce:     config.GetDurationMs("autosave.debounceMs"),
		MaxRetries:   config.GetInt("autosave.maxRetries"),
		MergePending: config.GetBool("autosave.mergePending"),
	})

	col := scene.NewCollection()
	hist := history.New(col, config.GetInt("history.maxDepth"))
	snapEng := snap.NewEngine(float64(config.GetInt("snap.tolerance")))
	checkpoints := checkpoint.New(col, DataStore, nil, Logger)

	disp, err := dispatcher.New(logging.NewDispatcherLogger(Logger))
	if err != nil {
		Logger.Error("Failed to initialize dispatcher", "error", err)
		return
	}
	defer disp.Close()

	var notifier *devsync.Notifier
	if config.GetBool("devsync.enabled") {
		notifier = devsync.New(devsync.Config{
			URL:    config.GetString("devsync.url"),
			Secret: config.GetString("devsync.secret"),
		}, Logger)
		if err := notifier.Start(); err != nil {
			Logger.Warn("Dev-sync unavailable, continuing without it", "error", err)
			notifier = nil
		} else {
			defer notifier.Close()
		}
	}

	var tele *telemetry.Manager
	if config.GetBool("influx.enabled") {
		backupPath := filepath.Join(config.GetString("logsDir"),
			fmt.Sprintf("%s.metrics.%s.gz", AppName, SessionStartTime.Format("20060102_150405")))
		zlog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		tele = telemetry.NewManager(zlog, backupPath)
		if err := tele.Connect(); err != nil {
			Logger.Warn("Telemetry unavailable", "error", err)
			tele = nil
		} else {
			defer tele.Close()
		}
	}

	svc := session.NewService(session.Dependencies{
		Scene:       col,
		History:     hist,
		Snap:        snapEng,
		Autosave:    auto,
		Offline:     queue,
		Checkpoints: checkpoints,
		Dispatcher:  disp,
		Monitor:     mon,
		DevSync:     notifier,
		Telemetry:   tele,
		Logger:      Logger,
	})
	svc.Start()
	defer svc.Close()

	// Every log line from here on carries the active screen and draft.
	SlogManager.SetContextProvider(func() []slog.Attr {
		screenID, _, _ := col.Screen()
		return []slog.Attr{
			slog.String("screenId", screenID),
			slog.String("draftId", svc.DraftID()),
		}
	})

	statusMon := monitor.NewService(monitor.Dependencies{
		Telemetry: tele,
		Logger:    Logger,
		Sample:    svc.Sample,
		StatusDir: config.GetString("logsDir"),
	})
	if err := statusMon.Start(); err != nil {
		Logger.Warn("Status monitor failed to start", "error", err)
	}
	defer statusMon.Stop()

	Logger.Info("Editing session core ready",
		"server", viper.GetString("api.serverUrl"),
		"db", viper.GetString("db.type"))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	Logger.Info("Shutting down")
}
