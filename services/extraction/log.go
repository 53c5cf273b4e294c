package extraction

import (
	applog "github.com/sahilchouksey/icm-reconcile/utils/logger"
	"go.uber.org/zap"
)

func logger() *zap.SugaredLogger {
	return applog.Named("extraction")
}
