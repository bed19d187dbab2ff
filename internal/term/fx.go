package term

import (
	"github.com/smallbiznis/panelbilling/internal/term/repository"
	"github.com/smallbiznis/panelbilling/internal/term/service"
	"go.uber.org/fx"
)

var Module = fx.Module("term.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
