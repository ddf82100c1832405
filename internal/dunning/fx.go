package dunning

import (
	"github.com/smallbiznis/facturo/internal/dunning/repository"
	"github.com/smallbiznis/facturo/internal/dunning/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dunning.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewSettings),
	fx.Provide(service.NewSweeper),
)
