package app

import (
	"github.com/yungbote/classr/internal/data/db"
	"github.com/yungbote/classr/internal/data/repos"
	"github.com/yungbote/classr/internal/platform/logger"
)

func wireRepos(store *db.SQLiteService, log *logger.Logger) *repos.Repos {
	log.Info("Wiring repos...")
	return repos.New(store.DB(), log)
}
