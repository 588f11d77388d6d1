package rtc

import (
	rtcpkg "github.com/lingora-app/lingora/internal/rtc"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (rtcpkg.Connector, error) {
		return NewLiveKitConnector(), nil
	})
}
