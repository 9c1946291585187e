package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/trezcool/coursehub/core"
	"github.com/trezcool/coursehub/core/user"
	logsvc "github.com/trezcool/coursehub/services/logger"
	"github.com/trezcool/coursehub/storage/database"
	"github.com/trezcool/coursehub/storage/database/inmem"
	sqlxrepos "github.com/trezcool/coursehub/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)

	var (
		db      *sql.DB
		usrRepo user.Repository
	)
	switch conf.Database.Engine {
	case core.EnginePostgres:
		if err := database.CreateIfNotExist(conf); err != nil {
			logger.Fatal("creating database", err)
		}
		xdb, err := database.Open(conf)
		if err != nil {
			logger.Fatal("opening database", err)
		}
		defer xdb.Close()
		db = xdb.DB
		usrRepo = sqlxrepos.NewUserRepository(xdb)
	default:
		usrRepo = inmemdb.NewUserRepository(inmemdb.Open())
	}

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db:       db,
		usrSvc:   user.NewService(usrRepo),
		validate: validate,
		out:      os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed: "+err.Error(), err)
		}
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}
