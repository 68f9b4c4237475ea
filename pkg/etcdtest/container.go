// Package etcdtest starts disposable etcd nodes for lock tests.
package etcdtest

import (
	"context"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/pkg/errors"
	v3 "go.etcd.io/etcd/client/v3"

	"github.com/code-payments/code-staking/pkg/containertest"
)

const (
	image = "quay.io/coreos/etcd"
	tag   = "v3.5.13"

	dialTimeout = 5 * time.Second
)

// StartEtcd runs a single node etcd container and returns a connected client.
// teardown closes the client and removes the container.
func StartEtcd(pool *dockertest.Pool) (client *v3.Client, teardown func(), err error) {
	teardown = func() {}

	container, err := containertest.Run(pool, containertest.Options{
		Repository: image,
		Tag:        tag,
		Env: []string{
			"ALLOW_NONE_AUTHENTICATION=true",
			"ETCD_LISTEN_CLIENT_URLS=http://0.0.0.0:2379",
			"ETCD_ADVERTISE_CLIENT_URLS=http://0.0.0.0:2379",
		},
		Port: "2379/tcp",
	})
	if err != nil {
		return nil, teardown, err
	}

	client, err = v3.New(v3.Config{
		Endpoints:   []string{container.HostPort},
		DialTimeout: dialTimeout,
	})
	if err != nil {
		container.Purge()
		return nil, teardown, errors.Wrap(err, "failed to create etcd client")
	}

	teardown = func() {
		client.Close()
		container.Purge()
	}

	err = container.WaitReady(func(ctx context.Context) error {
		_, err := client.Get(ctx, "/readiness")
		return err
	})
	if err != nil {
		return nil, teardown, err
	}
	return client, teardown, nil
}
