package provisioning

import (
	"github.com/smallbiznis/panelbilling/internal/provisioning/client"
	"go.uber.org/fx"
)

var Module = fx.Module("provisioning",
	fx.Provide(client.Provide),
)
