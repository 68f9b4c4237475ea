// Package containertest runs throwaway docker containers for integration
// tests.
package containertest

import (
	"context"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-staking/pkg/retry"
	"github.com/code-payments/code-staking/pkg/retry/backoff"
)

const (
	// Containers are killed by docker after this long, even if the test
	// process dies before purging them.
	autoKill = 2 * time.Minute

	readyAttempts = 60
	readyInterval = 500 * time.Millisecond
)

// Options describes the container to run.
type Options struct {
	Repository string
	Tag        string
	Env        []string

	// Port is the container port to expose, for example "5432/tcp".
	Port string
}

// Container is a running container.
type Container struct {
	log      *logrus.Entry
	pool     *dockertest.Pool
	resource *dockertest.Resource

	// HostPort is the host:port that Options.Port is reachable on.
	HostPort string
}

// Run starts a container described by opts. The container is removed once it stops.
func Run(pool *dockertest.Pool, opts Options) (*Container, error) {
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: opts.Repository,
		Tag:        opts.Tag,
		Env:        opts.Env,
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start %s:%s", opts.Repository, opts.Tag)
	}

	// Expire never fails
	_ = resource.Expire(uint(autoKill.Seconds()))

	return &Container{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"type":  "containertest",
			"image": opts.Repository + ":" + opts.Tag,
		}),
		pool:     pool,
		resource: resource,
		HostPort: resource.GetHostPort(opts.Port),
	}, nil
}

// WaitReady calls ready until it succeeds, giving up after about half a
// minute.
func (c *Container) WaitReady(ready func(ctx context.Context) error) error {
	_, err := retry.Retry(
		context.Background(),
		func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			return ready(ctx)
		},
		retry.Limit(readyAttempts),
		retry.Backoff(backoff.Constant(readyInterval)),
	)
	return errors.Wrap(err, "container did not become ready")
}

// Purge stops and removes the container.
func (c *Container) Purge() {
	if err := c.pool.Purge(c.resource); err != nil {
		c.log.WithError(err).Warn("failed to purge container")
	}
}
