// Package test starts disposable postgres instances for store tests.
package test

import (
	"database/sql"
	"fmt"

	"github.com/ory/dockertest/v3"
	"github.com/pkg/errors"

	_ "github.com/jackc/pgx/v4/stdlib" //nolint:revive

	"github.com/code-payments/code-staking/pkg/containertest"
)

const (
	image    = "postgres"
	tag      = "10.4"
	user     = "localtest"
	password = "localpassword"
	dbname   = "testdb"
)

// StartPostgresDB runs a postgres container and returns a connected client.
// teardown closes the client and removes the container.
func StartPostgresDB(pool *dockertest.Pool) (db *sql.DB, teardown func(), err error) {
	teardown = func() {}

	container, err := containertest.Run(pool, containertest.Options{
		Repository: image,
		Tag:        tag,
		Env: []string{
			"listen_addresses = '*'",
			"POSTGRES_USER=" + user,
			"POSTGRES_PASSWORD=" + password,
			"POSTGRES_DB=" + dbname,
		},
		Port: "5432/tcp",
	})
	if err != nil {
		return nil, teardown, err
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", user, password, container.HostPort, dbname)
	db, err = sql.Open("pgx", dsn)
	if err != nil {
		container.Purge()
		return nil, teardown, errors.Wrap(err, "failed to open postgres client")
	}

	teardown = func() {
		db.Close()
		container.Purge()
	}

	if err := container.WaitReady(db.PingContext); err != nil {
		return nil, teardown, err
	}
	return db, teardown, nil
}
