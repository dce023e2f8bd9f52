package echoapi

import (
	"context"
	"net/http"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/tribunal/core"
	"github.com/trezcool/tribunal/core/asset"
	"github.com/trezcool/tribunal/core/proposal"
	logsvc "github.com/trezcool/tribunal/services/logger"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool
		Debug          bool
		TestMode       bool
		AppName        string
		SecretKey      string

		// reviewers below MaestroLevel cannot see the review queue
		MaestroLevel int
		MaxAssetSize int64
		// when set, stored assets are served from AssetDir under AssetPrefix
		AssetDir    string
		AssetPrefix string

		ProposalSvc *proposal.Service
		Uploader    asset.Uploader
		Logger      core.Logger
		Translator  ut.Translator
		// called whenever an unrecoverable error is handled
		SignalShutdown func()
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	if opts.SignalShutdown == nil {
		opts.SignalShutdown = func() {}
	}
	if opts.Logger == nil {
		opts.Logger = logsvc.NewNopLogger()
	}
	if opts.Uploader == nil {
		opts.Uploader = asset.DataURIUploader{Validator: asset.Validator{MaxSize: opts.MaxAssetSize}}
	}
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.opts.Debug || s.opts.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.opts.SignalShutdown)
	s.app.Debug = s.opts.Debug

	s.app.GET("/", s.home)
	if s.opts.AssetDir != "" && s.opts.AssetPrefix != "" {
		s.app.Static(s.opts.AssetPrefix, s.opts.AssetDir)
	}

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(jwtConfig(s.opts.SecretKey))

	registerProposalAPI(v1, jwt, s.opts)
}

// Start blocks until the server stops. http.ErrServerClosed is not reported.
func (s *server) Start() error {
	if err := s.app.Start(s.opts.Address); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	name := strings.TrimSpace(s.opts.AppName)
	if name == "" {
		name = "Tribunal"
	}
	return ctx.String(http.StatusOK, "Welcome to "+name+" API!")
}
