// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"context"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	lockRoot  = "/distributed_locks" // 所有分布式锁的根节点
	seqDigits = 10                   // 顺序节点的序号位数
)

// Conn 是锁用到的 ZooKeeper 操作，*zk.Conn 实现了它
type Conn interface {
	Exists(path string) (bool, *zk.Stat, error)
	ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error)
	Children(path string) ([]string, *zk.Stat, error)
	Delete(path string, version int32) error
}

// Connect 连接 ZooKeeper 集群，客户端日志和会话事件写入 zerolog
func Connect(servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	conn, events, err := zk.Connect(servers, sessionTimeout, zk.WithLogger(&log.Logger))
	if err != nil {
		return nil, errors.Wrap(err, "connect zookeeper")
	}
	go func() {
		for ev := range events {
			if ev.Type == zk.EventSession {
				log.Debug().Str("state", ev.State.String()).Msg("ZooKeeper session state changed")
			}
		}
	}()
	return conn, nil
}

// DistributedLock 定义了一个分布式锁对象
type DistributedLock struct {
	conn Conn
	path string // 锁的路径，例如 /distributed_locks/promotion-service-metrics-publisher

	mu       sync.Mutex
	lockNode string        // 成功获取锁后，自己创建的节点路径
	stop     chan struct{} // 释放锁时关闭，结束节点监听
}

// NewDistributedLock 创建一个新的分布式锁实例，并确保锁路径存在
func NewDistributedLock(conn Conn, resourceID string) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	for _, p := range []string{lockRoot, lockPath} {
		if err := ensureNode(conn, p); err != nil {
			return nil, err
		}
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// Lock 阻塞直到获得锁或 ctx 取消。
// 返回的 channel 在锁节点消失（会话过期、节点被删除或 Unlock）时关闭。
func (l *DistributedLock) Lock(ctx context.Context) (<-chan struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lockNode != "" {
		return nil, errors.New("lock already held")
	}

	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", nil, zk.WorldACL(zk.PermAll))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create sequential node")
	}
	myNodeName := strings.TrimPrefix(nodePath, l.path+"/")

	for {
		// 2. 获取锁路径下的所有子节点，按序号排序
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			l.abandon(nodePath)
			return nil, errors.Wrap(err, "failed to get children nodes")
		}
		// 受保护节点名带有 GUID 前缀，按字符串排序会打乱顺序
		sort.Slice(children, func(i, j int) bool { return sequence(children[i]) < sequence(children[j]) })

		idx := slices.Index(children, myNodeName)
		switch {
		case idx < 0:
			return nil, errors.Errorf("lock node %s disappeared", nodePath)
		case idx == 0:
			// 3. 是最小节点，成功获取锁
			l.lockNode = nodePath
			l.stop = make(chan struct{})
			lost := make(chan struct{})
			go l.watch(nodePath, l.stop, lost)
			return lost, nil
		}

		// 4. 不是最小节点，监听前一个节点
		exists, _, events, err := l.conn.ExistsW(l.path + "/" + children[idx-1])
		if err != nil {
			l.abandon(nodePath)
			return nil, errors.Wrap(err, "failed to watch previous node")
		}
		if !exists {
			continue
		}
		select {
		case <-events:
			// 前一个节点有变化，重新检查
		case <-ctx.Done():
			l.abandon(nodePath)
			return nil, ctx.Err()
		}
	}
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	close(l.stop)
	err := l.conn.Delete(l.lockNode, -1)
	l.lockNode, l.stop = "", nil
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return errors.Wrap(err, "failed to delete lock node")
	}
	return nil
}

// watch 监听自己的锁节点，节点消失或监听失效时关闭 lost
func (l *DistributedLock) watch(node string, stop <-chan struct{}, lost chan<- struct{}) {
	defer close(lost)
	for {
		exists, _, events, err := l.conn.ExistsW(node)
		if err != nil || !exists {
			return
		}
		select {
		case <-stop:
			return
		case ev := <-events:
			if ev.Type == zk.EventNodeDeleted || ev.Type == zk.EventNotWatching {
				return
			}
		}
	}
}

// abandon 放弃竞争时删除自己的节点，失败时等会话过期后由 ZooKeeper 清理
func (l *DistributedLock) abandon(nodePath string) {
	if err := l.conn.Delete(nodePath, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
		log.Warn().Err(err).Str("node", nodePath).Msg("failed to remove abandoned lock node")
	}
}

func ensureNode(conn Conn, path string) error {
	exists, _, err := conn.Exists(path)
	if err != nil {
		return errors.Wrapf(err, "failed to check node %s", path)
	}
	if exists {
		return nil
	}
	if _, err := conn.Create(path, nil, 0, zk.WorldACL(zk.PermAll)); err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return errors.Wrapf(err, "failed to create node %s", path)
	}
	return nil
}

func sequence(name string) int {
	if len(name) < seqDigits {
		return math.MaxInt
	}
	n, err := strconv.Atoi(name[len(name)-seqDigits:])
	if err != nil {
		return math.MaxInt
	}
	return n
}
