package dig_container

import (
	"io"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/coursehub/apps/api/echo"
	"github.com/trezcool/coursehub/core"
	"github.com/trezcool/coursehub/core/course"
	"github.com/trezcool/coursehub/core/enrollment"
	"github.com/trezcool/coursehub/core/settings"
	"github.com/trezcool/coursehub/core/user"
	appfs "github.com/trezcool/coursehub/fs"
	emailsvc "github.com/trezcool/coursehub/services/email"
	logsvc "github.com/trezcool/coursehub/services/logger"
	"github.com/trezcool/coursehub/services/metrics"
	"github.com/trezcool/coursehub/services/notify"
	"github.com/trezcool/coursehub/storage/database"
	"github.com/trezcool/coursehub/storage/database/inmem"
	sqlxrepos "github.com/trezcool/coursehub/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Storage is the set of repositories backed by the configured database engine.
	Storage struct {
		dig.Out
		Transactor     core.Transactor
		UserRepo       user.Repository
		CourseRepo     course.Repository
		EnrollmentRepo enrollment.Repository
		SettingsRepo   settings.Repository
		Closer         io.Closer `name:"dbCloser"`
	}

	DBCloserParam struct {
		dig.In
		Closer io.Closer `name:"dbCloser"`
	}

	enrollmentParams struct {
		dig.In
		Conf        *core.Config
		Validate    *validator.Validate
		Repo        enrollment.Repository
		CourseRepo  course.Repository
		UserSvc     user.Service
		SettingsSvc settings.Service
		MailSvc     core.EmailService
		Tmpls       *core.EmailTemplates
		Dispatcher  *notify.Dispatcher
		Metrics     *metrics.Metrics
	}

	serverParams struct {
		dig.In
		Conf          *core.Config
		Logger        core.Logger
		Validate      *validator.Validate
		Translator    ut.Translator
		Metrics       *metrics.Metrics
		UserSvc       user.Service
		CourseSvc     course.Service
		EnrollmentSvc enrollment.Service
		SettingsSvc   settings.Service
	}
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newLogger(conf *core.Config) (core.Logger, *logsvc.RollbarLogger) {
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	return logger, logger
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) (Storage, error) {
	switch conf.Database.Engine {
	case core.EngineMemory:
		loggerParam.Logger.Warn("using the in-memory store: data is lost on restart")
		db := inmemdb.Open()
		return Storage{
			Transactor:     inmemdb.NewTransactor(),
			UserRepo:       inmemdb.NewUserRepository(db),
			CourseRepo:     inmemdb.NewCourseRepository(db),
			EnrollmentRepo: inmemdb.NewEnrollmentRepository(db),
			SettingsRepo:   inmemdb.NewSettingsRepository(db),
			Closer:         nopCloser{},
		}, nil

	case core.EnginePostgres:
		if err := database.CreateIfNotExist(conf); err != nil {
			return Storage{}, errors.Wrap(err, "creating database")
		}
		db, err := database.Open(conf)
		if err != nil {
			return Storage{}, errors.Wrap(err, "opening database")
		}
		if err = database.Migrate(db.DB); err != nil {
			_ = db.Close()
			return Storage{}, errors.Wrap(err, "migrating database")
		}
		return Storage{
			Transactor:     database.NewTransactor(db),
			UserRepo:       sqlxrepos.NewUserRepository(db),
			CourseRepo:     sqlxrepos.NewCourseRepository(db),
			EnrollmentRepo: sqlxrepos.NewEnrollmentRepository(db),
			SettingsRepo:   sqlxrepos.NewSettingsRepository(db),
			Closer:         db,
		}, nil
	}
	return Storage{}, errors.Errorf("unknown database engine %q", conf.Database.Engine)
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	return validate, translator
}

func newEmailTemplates(conf *core.Config) (*core.EmailTemplates, error) {
	return core.ParseEmailTemplates(appfs.FS, conf)
}

func newEmailService(conf *core.Config, tmpls *core.EmailTemplates, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, tmpls, logger, log.New(os.Stdout, "", 0))
	}
	return emailsvc.NewSendgridService(conf, tmpls, logger)
}

func newDispatcher(conf *core.Config, logger core.Logger, m *metrics.Metrics) *notify.Dispatcher {
	return notify.NewDispatcher(conf, logger, m)
}

func newEnrollmentService(p enrollmentParams) enrollment.Service {
	return enrollment.NewService(enrollment.Deps{
		Conf:       p.Conf,
		Validate:   p.Validate,
		Repo:       p.Repo,
		Catalog:    enrollment.NewCatalogIndex(p.CourseRepo),
		Users:      p.UserSvc,
		Settings:   p.SettingsSvc,
		Notifier:   notify.NewEmailNotifier(p.MailSvc, p.Tmpls, p.Metrics),
		Dispatcher: p.Dispatcher,
		Observer:   p.Metrics,
	})
}

// newCourseService makes course deletion cascade to the enrollments.
func newCourseService(tx core.Transactor, repo course.Repository, enrSvc enrollment.Service) course.Service {
	return course.NewService(tx, repo, enrSvc)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		Recorder:      p.Metrics,
		UserSvc:       p.UserSvc,
		CourseSvc:     p.CourseSvc,
		EnrollmentSvc: p.EnrollmentSvc,
		SettingsSvc:   p.SettingsSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newValidator))
	must(c.Provide(newEmailTemplates))
	must(c.Provide(newEmailService))
	must(c.Provide(metrics.NewMetrics))
	must(c.Provide(newDispatcher))
	must(c.Provide(user.NewService))
	must(c.Provide(settings.NewService))
	must(c.Provide(newEnrollmentService))
	must(c.Provide(newCourseService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
