package firmchat

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/cors"

	"github.com/firmdesk/firmchat/core"
	"github.com/firmdesk/firmchat/pkg/router"
)

type App struct {
	config      *Config
	db          *core.SQLiteDB
	context     context.Context
	server      *http.Server
	logger      *slog.Logger
	router      *router.Router
	registry    *core.RoomRegistry
	eventRouter *core.EventRouter
	wsManager   *core.ConnManager

	exit chan int

	userStore core.UserStore
	chatStore core.ChatStore

	userHandler *UserHandler
	chatHandler *ChatHandler

	cleanupFuncs []func(context.Context)

	wg sync.WaitGroup
}

func New(ctx context.Context, config *Config) *App {
	var err error
	app := &App{
		exit: make(chan int),
	}
	if ctx == nil {
		ctx, _ = signal.NotifyContext(
			context.Background(),
			syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	}
	app.context = ctx

	if config == nil {
		var err error
		config, err = LoadConfig()
		if err != nil {
			failed(1, "failed to load config: %v\n", err)
		}
	}
	if err := config.Validate(); err != nil {
		failed(1, FormatValidationErrors(err))
	}
	app.config = config

	app.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}))

	sqliteOptions := &core.SQLiteDBOption{
		Mode:        "rwc",
		Cache:       "shared",
		JournalMode: "WAL",
	}
	app.db, err = core.NewSQLiteDB(app.config.SQLite.File, app.config.SQLite.Migrations, sqliteOptions)
	if err != nil {
		failed(1, "failed to open database: %v\n", err)
	}
	app.AddCleanupFunc(func(ctx context.Context) {
		app.db.Close()
	})
	if err := app.db.Migrate(); err != nil {
		failed(1, "failed to migrate database: %v\n", err)
	}

	app.userStore = core.NewSQLiteUserStore(app.db.DB)
	app.chatStore = core.NewSQLiteChatStore(app.db.DB, app.userStore)

	app.registry = core.NewRoomRegistry(app.logger)
	app.wsManager = core.NewConnManager(app.context, &app.wg, app.logger, app.registry)
	app.eventRouter = core.NewEventRouter(app.context, app.logger, app.wsManager)
	app.eventRouter.On(core.JoinRoomEvent, app.JoinRoomHandler)
	app.eventRouter.On(core.LeaveRoomEvent, app.LeaveRoomHandler)

	app.userHandler = NewUserHandler(app.userStore)
	app.chatHandler = NewChatHandler(app.chatStore, app.userStore, app.eventRouter)
	authMiddleware := JWTMiddleware(app.config.Auth.Secret)

	app.router = router.New(router.WithLogger(app.logger))

	app.router.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	app.router.With(authMiddleware).Router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		session := SessionFromRequest(r)
		_, err := app.wsManager.Connect(session.UserID, w, r)
		if err != nil {
			return
		}
	})

	api := router.New(router.WithLogger(app.logger))
	api.Use(authMiddleware)

	api.Get("/messages", app.chatHandler.GetMessagesHandler)
	api.Post("/messages", app.chatHandler.SendMessageHandler)

	api.Get("/announcements", app.chatHandler.GetAnnouncementsHandler)
	api.Post("/announcements", app.chatHandler.CreateAnnouncementHandler)

	api.Route("/unseen", func(r *router.Router) {
		r.Get("/", app.chatHandler.GetUnseenHandler)
		r.Post("/personal/{peerID}/seen", app.chatHandler.MarkPersonalSeenHandler)
		r.Post("/groups/{groupID}/seen", app.chatHandler.MarkGroupSeenHandler)
	})

	api.Route("/users", func(r *router.Router) {
		r.Get("/", app.userHandler.GetUsersHandler)
		r.Post("/", app.userHandler.CreateUserHandler)
		r.Get("/me", app.userHandler.GetMeHandler)
	})

	api.Route("/groups", func(r *router.Router) {
		r.Get("/", app.userHandler.GetGroupsHandler)
		r.Post("/", app.userHandler.CreateGroupHandler)
		r.Get("/{groupID}/members", app.userHandler.GetGroupMembersHandler)
	})

	app.router.Mount("/api", api)

	app.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", app.config.Hostname, app.config.Port),
		Handler: app.router.Router,
		BaseContext: func(listener net.Listener) context.Context {
			return app.context
		},
	}

	return app
}

func (app *App) Start() {
	app.eventRouter.Listen()
	app.AddCleanupFunc(func(ctx context.Context) {
		app.eventRouter.Close(ctx)
	})
	app.AddCleanupFunc(func(ctx context.Context) {
		app.server.Shutdown(ctx)
	})

	// listen for shutdown signal; exit carries the code exactly once
	go func() {
		<-app.context.Done()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		app.exit <- app.cleanup(closeCtx)
	}()

	app.logger.Info(fmt.Sprintf("app running on: %s:%d",
		app.config.Hostname, app.config.Port))

	err := app.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		failed(1, "server error: %v\n", err)
	}

	code := <-app.exit
	if code != 0 {
		failed(code, "app exit with code: %d\n", code)
	}
	os.Exit(code)
}

// cleanup runs the registered cleanup funcs in registration order under the
// given deadline. It returns the process exit code: 0 when every func
// finished, 1 when the deadline hit first. On timeout the server is closed
// hard so a cleanup func stuck ahead of the graceful Shutdown cannot keep
// ListenAndServe alive.
func (app *App) cleanup(ctx context.Context) int {
	done := make(chan struct{})
	go func() {
		for _, f := range app.cleanupFuncs {
			f(ctx)
		}
		close(done)
	}()

	select {
	case <-done:
		app.logger.Info("app shutdown gracefully")
		return 0
	case <-ctx.Done():
		app.logger.Info("app shutdown timed out")
		if app.server != nil {
			app.server.Close()
		}
		return 1
	}
}

func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}

func failed(code int, s string, args ...interface{}) {
	fmt.Printf(s, args...)
	os.Exit(code)
}
