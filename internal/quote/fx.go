package quote

import (
	"github.com/smallbiznis/panelbilling/internal/quote/service"
	"go.uber.org/fx"
)

var Module = fx.Module("quote.service",
	fx.Provide(service.New),
)
