package event

import (
	"github.com/bwmarrin/snowflake"
	"github.com/freightwatch/doomfeed/internal/event/domain"
	"github.com/freightwatch/doomfeed/internal/event/repository"
	"github.com/freightwatch/doomfeed/internal/event/service"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("event",
	fx.Provide(func(db *gorm.DB, genID *snowflake.Node) domain.Repository {
		return repository.New(db, genID)
	}),
	fx.Provide(service.New),
)
