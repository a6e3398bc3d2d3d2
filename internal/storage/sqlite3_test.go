//go:build cgo

package storage

import "task-api/internal/config"

func init() {
	sqliteDrivers = append(sqliteDrivers, config.DriverSQLite3)
}
