package utils

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grussorusso/offloadledge/internal/config"
	clientv3 "go.etcd.io/etcd/client/v3"
)

var etcdClient *clientv3.Client = nil
var clientMutex sync.Mutex

// etcdEndpoints splits the configured address list, dropping blanks.
func etcdEndpoints() []string {
	var endpoints []string
	for _, e := range strings.Split(config.GetString(config.ETCD_ADDRESS, "localhost:2379"), ",") {
		if e = strings.TrimSpace(e); e != "" {
			endpoints = append(endpoints, e)
		}
	}
	return endpoints
}

// GetEtcdClient returns the client shared by presence and claims, connecting
// on first use.
func GetEtcdClient() (*clientv3.Client, error) {
	clientMutex.Lock()
	defer clientMutex.Unlock()

	if etcdClient != nil {
		return etcdClient, nil
	}

	endpoints := etcdEndpoints()
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no etcd endpoint configured")
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: time.Duration(config.GetInt(config.ETCD_DIAL_TIMEOUT, 1000)) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("could not connect to etcd at %v: %v", endpoints, err)
	}

	etcdClient = cli
	return cli, nil
}

// CloseEtcdClient closes the shared client, if any. A later GetEtcdClient
// connects again.
func CloseEtcdClient() error {
	clientMutex.Lock()
	defer clientMutex.Unlock()
	if etcdClient == nil {
		return nil
	}
	err := etcdClient.Close()
	etcdClient = nil
	return err
}
