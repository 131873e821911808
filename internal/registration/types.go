package registration

import (
	"errors"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"
)

var UnavailableClientErr = errors.New("etcd client unavailable")
var IdRegistrationErr = errors.New("etcd error: could not complete the registration")
var KeepAliveErr = errors.New("the system can't renew your registration key")

// DefaultBaseDir is the etcd prefix used when none is configured.
const DefaultBaseDir = "offloadledge"

// DefaultTTL of the presence lease, in seconds.
const DefaultTTL = 20

// Registry announces this node in etcd and arbitrates procedure names
// between the nodes attached to the same realm.
type Registry struct {
	BaseDir string
	Realm   string
	TTL     int64

	mtx     sync.Mutex
	id      string
	leaseID clientv3.LeaseID
	cancel  func()
}

// NodeInfo is a node attached to the realm.
type NodeInfo struct {
	Id  string
	Url string
}
