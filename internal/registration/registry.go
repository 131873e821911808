package registration

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/lithammer/shortuuid"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/grussorusso/offloadledge/utils"
)

func NewRegistry(baseDir, realm string, ttl int64) *Registry {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{BaseDir: baseDir, Realm: realm, TTL: ttl}
}

// nodeKey returns the key of a node under the realm; with an empty id it is
// the prefix of every node key.
func (r *Registry) nodeKey(id string) string {
	return fmt.Sprintf("%s/nodes/%s/%s", r.BaseDir, r.Realm, id)
}

func (r *Registry) procedureKey(name string) string {
	return fmt.Sprintf("%s/procedures/%s/%s", r.BaseDir, r.Realm, name)
}

// Id returns the node id, empty before RegisterToEtcd.
func (r *Registry) Id() string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.id
}

// RegisterToEtcd announces the node under its realm with a lease kept alive
// until Deregister or a fault.
func (r *Registry) RegisterToEtcd(url string) error {
	etcdClient, err := utils.GetEtcdClient()
	if err != nil {
		return UnavailableClientErr
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	//generate unique identifier
	id := shortuuid.New() + strconv.FormatInt(time.Now().UnixNano(), 10)

	resp, err := etcdClient.Grant(ctx, r.TTL)
	if err != nil {
		return err
	}

	log.Printf("Registration key: %s\n", r.nodeKey(id))
	_, err = etcdClient.Put(ctx, r.nodeKey(id), url, clientv3.WithLease(resp.ID))
	if err != nil {
		return IdRegistrationErr
	}

	keepAliveCtx, stop := context.WithCancel(etcdClient.Ctx())
	// the key id will be kept alive until a fault will occur
	keepAliveCh, err := etcdClient.KeepAlive(keepAliveCtx, resp.ID)
	if err != nil || keepAliveCh == nil {
		stop()
		return KeepAliveErr
	}
	go func() {
		for range keepAliveCh {
			// eat messages until keep alive channel closes
		}
		log.Printf("Lease of %s no longer renewed\n", id)
	}()

	r.mtx.Lock()
	r.id = id
	r.leaseID = resp.ID
	r.cancel = stop
	r.mtx.Unlock()
	return nil
}

// GetAll lists the nodes attached to the realm.
func (r *Registry) GetAll(ctx context.Context) ([]NodeInfo, error) {
	etcdClient, err := utils.GetEtcdClient()
	if err != nil {
		return nil, UnavailableClientErr
	}
	baseDir := r.nodeKey("")
	resp, err := etcdClient.Get(ctx, baseDir, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	nodes := make([]NodeInfo, len(resp.Kvs))
	for i, kv := range resp.Kvs {
		nodes[i].Id = strings.TrimPrefix(string(kv.Key), baseDir)
		nodes[i].Url = string(kv.Value)
	}
	return nodes, nil
}

// Claim makes this node the owner of a procedure name across the realm.
// It reports false if another node owns it. Claims are bound to the presence
// lease, so they disappear with the node.
func (r *Registry) Claim(ctx context.Context, name string) (bool, error) {
	r.mtx.Lock()
	id, lease := r.id, r.leaseID
	r.mtx.Unlock()
	if id == "" {
		return false, fmt.Errorf("node not registered")
	}
	etcdClient, err := utils.GetEtcdClient()
	if err != nil {
		return false, UnavailableClientErr
	}

	key := r.procedureKey(name)
	resp, err := etcdClient.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, id, clientv3.WithLease(lease))).
		Else(clientv3.OpGet(key)).
		Commit()
	if err != nil {
		return false, err
	}
	if resp.Succeeded {
		return true, nil
	}
	owner := resp.Responses[0].GetResponseRange().Kvs
	return len(owner) > 0 && string(owner[0].Value) == id, nil
}

// Release drops a claim owned by this node.
func (r *Registry) Release(ctx context.Context, name string) error {
	etcdClient, err := utils.GetEtcdClient()
	if err != nil {
		return UnavailableClientErr
	}
	key := r.procedureKey(name)
	_, err = etcdClient.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", r.Id())).
		Then(clientv3.OpDelete(key)).
		Commit()
	return err
}

// Deregister revokes the presence lease, dropping the node key and its claims.
func (r *Registry) Deregister() error {
	r.mtx.Lock()
	id, lease, stop := r.id, r.leaseID, r.cancel
	r.id, r.leaseID, r.cancel = "", 0, nil
	r.mtx.Unlock()
	if id == "" {
		return nil
	}
	etcdClient, err := utils.GetEtcdClient()
	if err != nil {
		return UnavailableClientErr
	}
	if stop != nil {
		stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if _, err := etcdClient.Revoke(ctx, lease); err != nil {
		return err
	}

	log.Println("Deregister : " + id)
	return nil
}
