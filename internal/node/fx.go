package node

import (
	"github.com/smallbiznis/panelbilling/internal/node/repository"
	"github.com/smallbiznis/panelbilling/internal/node/service"
	"go.uber.org/fx"
)

var Module = fx.Module("node.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
