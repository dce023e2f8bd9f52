// Package apps wires the dependencies shared by the Tribunal executables.
package apps

import (
	"context"
	"fmt"
	"io"

	ut "github.com/go-playground/universal-translator"
	"github.com/pkg/errors"

	"github.com/trezcool/tribunal/core"
	"github.com/trezcool/tribunal/core/asset"
	"github.com/trezcool/tribunal/core/proposal"
	appfs "github.com/trezcool/tribunal/fs"
	emailsvc "github.com/trezcool/tribunal/services/email"
	logsvc "github.com/trezcool/tribunal/services/logger"
	"github.com/trezcool/tribunal/storage/database"
	inmemdb "github.com/trezcool/tribunal/storage/database/inmem"
	redisdb "github.com/trezcool/tribunal/storage/database/redis"
	sqlxdb "github.com/trezcool/tribunal/storage/database/sqlx"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// NewLogger returns a zap logger that also reports to Rollbar outside of debug mode.
// The returned func flushes buffered entries.
func NewLogger(conf *core.Config) (core.Logger, func(), error) {
	local, err := logsvc.NewZapLogger(conf.Debug)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating zap logger")
	}
	logger := logsvc.NewRollbarLogger(local, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger, local.Sync, nil
}

// OpenStore opens the KVStore selected by conf.Store.Driver.
// With postgres, the database and its schema are created first if needed.
func OpenStore(ctx context.Context, conf *core.Config, logger core.Logger) (core.KVStore, error) {
	switch conf.Store.Driver {
	case DriverMemory, "":
		return inmemdb.NewKVStore(), nil
	case DriverPostgres:
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, errors.Wrap(err, "creating database")
		}
		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, err
		}
		if err = database.Migrate(ctx, db, "up"); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "migrating database")
		}
		return &dbStore{KVStore: sqlxdb.NewKVStore(db, database.DSN(conf), logger), db: db}, nil
	case DriverRedis:
		rdb, err := redisdb.Open(ctx, conf)
		if err != nil {
			return nil, err
		}
		return redisdb.NewKVStore(rdb, "", logger), nil
	}
	return nil, NewArgumentError(fmt.Sprintf("unknown store driver %q (want memory, postgres or redis)", conf.Store.Driver))
}

// dbStore closes the database along with the store.
type dbStore struct {
	*sqlxdb.KVStore
	db io.Closer
}

func (s *dbStore) Close() error {
	err := s.KVStore.Close()
	if dbErr := s.db.Close(); err == nil {
		err = dbErr
	}
	return err
}

// NewMailer prints emails in debug mode, and sends them through SendGrid otherwise.
// Email templates are parsed on the way.
func NewMailer(conf *core.Config, logger core.Logger) core.EmailService {
	core.ParseEmailTemplates(appfs.FS, "templates/email", logger, !conf.Debug)
	if conf.Debug || conf.SendgridAPIKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// NewProposalService builds the Tribunal on store.
// The returned translator is the one validation errors of the service translate with.
func NewProposalService(conf *core.Config, store core.KVStore, logger core.Logger, mailer core.EmailService) (*proposal.Service, ut.Translator) {
	validate, translator := proposal.NewValidator()
	svc := proposal.NewService(proposal.Options{
		Repo:               proposal.NewRepository(store, conf.Store.Key),
		Directory:          core.NewStaticDirectory(conf.Tribunal.MaestroLevel, conf.Tribunal.Maestros...),
		Logger:             logger,
		Mailer:             mailer,
		Validate:           validate,
		Quorum:             proposal.NewQuorum(conf.Tribunal.Quorum),
		OverrideLevel:      conf.Tribunal.OverrideLevel,
		MaxConflictRetries: conf.Tribunal.MaxConflictRetries,
	})
	return svc, translator
}

// NewUploader stores assets under conf.Asset.Dir, served from conf.Asset.BaseURL.
func NewUploader(conf *core.Config) asset.Uploader {
	return asset.NewDirUploader(conf.Asset.Dir, conf.Asset.BaseURL, asset.Validator{MaxSize: conf.Asset.MaxSize})
}
