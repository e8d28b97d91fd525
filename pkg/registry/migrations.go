package registry

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationFS embed.FS

// runMigrations applies the embedded migrations in dir to driver. With release
// set the migrator and the connection behind driver are closed afterwards.
func runMigrations(dir, driverName string, driver database.Driver, release bool) (err error) {
	sub, err := fs.Sub(migrationFS, "migrations/"+dir)
	if err != nil {
		return fmt.Errorf("migrations %s: %w", dir, err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, driverName, driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if release {
		defer func() {
			srcErr, dbErr := m.Close()
			err = errors.Join(err, srcErr, dbErr)
		}()
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
