package test

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pkg/errors"
)

const (
	containerVersion  = "14-alpine"
	containerAutoKill = 120 // seconds

	port     = 5432
	user     = "postgres"
	password = "test"
	dbName   = "purchase_engine_test"
)

// StartPostgresDB starts a throwaway postgres container and returns its
// connection URL and a cleanup function.
func StartPostgresDB(pool *dockertest.Pool) (databaseURL string, cleanup func(), err error) {
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        containerVersion,
		Env: []string{
			"POSTGRES_USER=" + user,
			"POSTGRES_PASSWORD=" + password,
			"POSTGRES_DB=" + dbName,
		},
		ExposedPorts: []string{fmt.Sprintf("%d/tcp", port)},
	}, func(config *docker.HostConfig) {
		// Enable AutoRemove and disable Restart
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return "", nil, errors.Wrap(err, "could not start postgres container")
	}

	// Set a timeout to automatically kill the container
	_ = resource.Expire(containerAutoKill)

	hostAndPort := resource.GetHostPort(fmt.Sprintf("%d/tcp", port))
	databaseURL = fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", user, password, hostAndPort, dbName)

	cleanup = func() {
		if err := pool.Purge(resource); err != nil {
			fmt.Printf("Could not purge resource: %s\n", err)
		}
	}

	return databaseURL, cleanup, nil
}

// WaitForConnection retries until the database accepts connections and
// returns an open handle.
func WaitForConnection(databaseURL string) (*sql.DB, error) {
	var db *sql.DB

	connect := func() error {
		var err error
		db, err = sql.Open("pgx", databaseURL)
		if err != nil {
			return err
		}
		if err = db.Ping(); err != nil {
			_ = db.Close()
			return err
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(500*time.Millisecond), 50)
	if err := backoff.Retry(connect, policy); err != nil {
		return nil, errors.Wrap(err, "database never became reachable")
	}

	return db, nil
}
