package notification

import (
	"github.com/smallbiznis/facturo/internal/notification/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.repository",
	fx.Provide(repository.Provide),
)
