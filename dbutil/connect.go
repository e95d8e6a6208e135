// Package dbutil opens the Postgres database and runs transactions on it.
package dbutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/ts4z/rungs/config"
)

const (
	ConnectorPgx      = "pgx"
	ConnectorCloudSQL = "connector"
)

type connectorFunc func(ctx context.Context) (*pgx.ConnConfig, error)

var connectors = map[string]connectorFunc{
	ConnectorPgx:      pgxConfig,
	ConnectorCloudSQL: cloudSQLConfig,
}

// requireEnv reads every key, and complains about all the missing ones at
// once rather than one per run.
func requireEnv(keys ...string) (map[string]string, error) {
	vals := map[string]string{}
	unset := []string{}
	for _, k := range keys {
		v := os.Getenv(k)
		if v == "" {
			unset = append(unset, k)
		}
		vals[k] = v
	}
	if len(unset) > 0 {
		return nil, fmt.Errorf("unset variables: %v", unset)
	}
	return vals, nil
}

// cloudSQLConfig dials through the Cloud SQL connector.  DB_USER, DB_PASS,
// DB_NAME and INSTANCE_CONNECTION_NAME ("project:region:instance") are
// required; PRIVATE_IP, if set, dials the private address.
func cloudSQLConfig(ctx context.Context) (*pgx.ConnConfig, error) {
	env, err := requireEnv("DB_USER", "DB_PASS", "DB_NAME", "INSTANCE_CONNECTION_NAME")
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn: %w", err)
	}

	cc, err := pgx.ParseConfig(fmt.Sprintf("user=%s password=%s database=%s",
		env["DB_USER"], env["DB_PASS"], env["DB_NAME"]))
	if err != nil {
		return nil, err
	}

	// Refresh certificates when needed rather than on a timer, which
	// serverless CPU throttling doesn't like.
	opts := []cloudsqlconn.Option{cloudsqlconn.WithLazyRefresh()}
	if os.Getenv("PRIVATE_IP") != "" {
		opts = append(opts, cloudsqlconn.WithDefaultDialOptions(cloudsqlconn.WithPrivateIP()))
	}
	d, err := cloudsqlconn.NewDialer(ctx, opts...)
	if err != nil {
		return nil, err
	}
	instance := env["INSTANCE_CONNECTION_NAME"]
	cc.DialFunc = func(ctx context.Context, _, _ string) (net.Conn, error) {
		return d.Dial(ctx, instance)
	}
	log.Printf("connecting to cloud sql instance %s, database %s", instance, cc.Database)
	return cc, nil
}

func pgxConfig(ctx context.Context) (*pgx.ConnConfig, error) {
	url := config.DBURL()
	if url == "" {
		return nil, errors.New("database URL is empty (set db_url or RUNGS_DB_URL)")
	}
	cc, err := pgx.ParseConfig(url)
	if err != nil {
		// The URL may hold a password; don't echo it.
		return nil, errors.New("can't parse db_url")
	}
	log.Printf("connecting to postgres at %s:%d, database %s", cc.Host, cc.Port, cc.Database)
	return cc, nil
}

// Connect opens the Postgres database named by the sql_connector setting:
// "pgx" dials db_url directly, "connector" goes through the Cloud SQL
// connector.
func Connect(ctx context.Context) (*sql.DB, error) {
	connector, ok := connectors[config.SQLConnector()]
	if !ok {
		return nil, fmt.Errorf("unknown sql_connector %q", config.SQLConnector())
	}
	cc, err := connector(ctx)
	if err != nil {
		return nil, err
	}

	db := stdlib.OpenDB(*cc)
	if n := config.DBMaxConns(); n > 0 {
		db.SetMaxOpenConns(n)
		db.SetMaxIdleConns(n)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}
