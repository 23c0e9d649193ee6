// Package logging provides structured logging using uber/zap.
//
// Production mode writes JSON; development mode writes colored console
// lines at debug level. Components take a named child logger:
//
//	log := logging.NewDefault()
//	defer log.Close()
//	bridgeLog := log.Component("bridge")
//	bridgeLog.Info("Realm bound", zap.String("realm_id", id))
package logging
