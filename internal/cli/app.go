package cli

import (
	"context"

	"github.com/proptour/proptour-cli/internal/api"
	"github.com/proptour/proptour-cli/internal/auth"
	"github.com/proptour/proptour-cli/internal/config"
	"github.com/proptour/proptour-cli/internal/events"
	"github.com/proptour/proptour-cli/internal/logging"
	"github.com/proptour/proptour-cli/internal/notify"
	"github.com/proptour/proptour-cli/internal/progress"
	"github.com/proptour/proptour-cli/internal/session"
	"github.com/proptour/proptour-cli/internal/watcher"
)

// app wires the long-lived collaborators a command needs: config, token
// source, backend client, event bus, durable session store, notifier, and
// the batch watcher.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	tokens   *auth.ClientCredentials
	api      *api.Client
	bus      *events.Bus
	store    *session.Store
	notifier *notify.Notifier
	watch    *watcher.Watcher
}

// newApp builds the object graph from the active configuration.
func newApp() (*app, error) {
	log := GetLogger()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	tokens := auth.NewClientCredentials(cfg)

	apiClient, err := api.NewClient(cfg, tokens, log)
	if err != nil {
		return nil, err
	}

	sessPath, err := config.DefaultSessionPath()
	if err != nil {
		return nil, err
	}

	store := session.NewStore(sessPath)

	// A record written under credentials that are gone now must not be
	// adopted by this session.
	session.PurgeOnAuthLoss(store, tokens.IsAuthenticated, log)

	bus := events.NewBus(0)
	notifier := notify.NewNotifier(cfg.Notifications, log)
	w := watcher.New(apiClient, notifier, bus, log, 0)

	return &app{
		cfg:      cfg,
		logger:   log,
		tokens:   tokens,
		api:      apiClient,
		bus:      bus,
		store:    store,
		notifier: notifier,
		watch:    w,
	}, nil
}

// startBridge begins mirroring watcher events into the session store. The
// goroutine ends with the context.
func (a *app) startBridge(ctx context.Context) {
	bridge := session.NewBridge(a.store, a.bus, a.tokens.IsAuthenticated, a.logger)
	go bridge.Run(ctx)
}

// watchUntilDone subscribes the terminal UI, invokes start (which should
// kick off polling), and blocks until the batch reaches a terminal phase
// or the context is cancelled, then joins the poll loop.
func (a *app) watchUntilDone(ctx context.Context, start func()) watcher.Snapshot {
	ui := progress.NewWatchUI()
	ui.Attach(a.bus)
	start()
	ui.Run(ctx)
	a.watch.Stop()
	return a.watch.Snapshot()
}
