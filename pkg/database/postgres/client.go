package pg

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/rds/rdsutils"
	"github.com/pkg/errors"

	_ "github.com/newrelic/go-agent/v3/integrations/nrpgx"
)

// Connections are opened through the New Relic instrumented pgx driver, so
// queries show up as datastore segments.
const driverName = "nrpgx"

// Config locates the ledger database and sizes its connection pool. Zero
// pool values keep the database/sql defaults.
type Config struct {
	User     string
	Host     string
	Password string
	Port     int
	DbName   string

	MaxOpenConnections int
	MaxIdleConnections int
	MaxConnLifetime    time.Duration
}

func (c *Config) validate() error {
	switch {
	case c.User == "":
		return errors.New("user is required")
	case c.Host == "":
		return errors.New("host is required")
	case c.Port <= 0:
		return errors.New("port is required")
	case c.DbName == "":
		return errors.New("db name is required")
	}
	return nil
}

// NewWithAwsIam opens a pool authenticated with an RDS IAM auth token in
// place of a password. Provisioned Aurora clusters only.
func NewWithAwsIam(config *Config, awsConfig aws.Config) (*sql.DB, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	// The RDS client carries the region and credential provider
	rdsClient := rds.New(awsConfig)

	endpoint := fmt.Sprintf("%s:%d", config.Host, config.Port)
	authToken, err := rdsutils.BuildAuthToken(endpoint, rdsClient.Region, config.User, rdsClient.Credentials)
	if err != nil {
		return nil, errors.Wrap(err, "error building rds auth token")
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		config.Host, config.Port, config.User, authToken, config.DbName,
	)
	return open(dsn, config)
}

// NewWithUsernameAndPassword opens a pool authenticated with a password.
func NewWithUsernameAndPassword(config *Config) (*sql.DB, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		config.User, config.Password, config.Host, config.Port, config.DbName,
	)
	return open(dsn, config)
}

func open(dsn string, config *Config) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	if config.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(config.MaxOpenConnections)
	}
	if config.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(config.MaxIdleConnections)
	}
	if config.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(config.MaxConnLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to reach database")
	}
	return db, nil
}
