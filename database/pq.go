package database

import (
	"time"

	"github.com/lib/pq"
	"github.com/sahilchouksey/icm-reconcile/config"
	applog "github.com/sahilchouksey/icm-reconcile/utils/logger"
	"gorm.io/gorm"
)

// Storage defines the interface that all database implementations must satisfy
type Storage interface {
	// Lifecycle methods
	Init() error
	Close() error
	HealthCheck() error

	// GORM DB access
	GetDB() *gorm.DB
}

// NewListener opens a lib/pq LISTEN connection on the application database.
// GORM's pgx pool cannot hold a LISTEN session, so notifications get their own connection.
func NewListener(env *config.EnviornmentVariable, channel string) (*pq.Listener, error) {
	listener := pq.NewListener(DSN(env), 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed:
			applog.Warnw("postgres listener connection attempt failed", "error", err)
		case pq.ListenerEventDisconnected:
			applog.Warnw("postgres listener disconnected", "error", err)
		case pq.ListenerEventReconnected:
			applog.Infow("postgres listener reconnected", "channel", channel)
		}
	})

	if err := listener.Listen(channel); err != nil {
		listener.Close()
		return nil, err
	}
	return listener, nil
}
