package settlement

import (
	orderdomain "github.com/smallbiznis/panelbilling/internal/order/domain"
	settlementdomain "github.com/smallbiznis/panelbilling/internal/settlement/domain"
	"github.com/smallbiznis/panelbilling/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(service.New),
	fx.Provide(func(s settlementdomain.Service) orderdomain.Settler { return s }),
)
