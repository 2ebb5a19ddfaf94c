package zookeeper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memConn 是内存中的 ZooKeeper 树，只实现锁用到的操作
type memConn struct {
	mu       sync.Mutex
	nodes    map[string]bool
	seq      int
	watchers map[string][]chan zk.Event
}

func newMemConn() *memConn {
	return &memConn{nodes: map[string]bool{}, watchers: map[string][]chan zk.Event{}}
}

func (c *memConn) Exists(path string) (bool, *zk.Stat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[path], &zk.Stat{}, nil
}

func (c *memConn) ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan zk.Event, 1)
	c.watchers[path] = append(c.watchers[path], ch)
	return c.nodes[path], &zk.Stat{}, ch, nil
}

func (c *memConn) Create(path string, _ []byte, _ int32, _ []zk.ACL) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nodes[path] {
		return "", zk.ErrNodeExists
	}
	c.nodes[path] = true
	return path, nil
}

func (c *memConn) CreateProtectedEphemeralSequential(path string, _ []byte, _ []zk.ACL) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	i := strings.LastIndex(path, "/")
	// GUID 前缀与序号顺序相反，按字符串排序会得到错误的持锁者
	node := fmt.Sprintf("%s/_c_%08d-%s%010d", path[:i], 99999999-c.seq, path[i+1:], c.seq)
	c.nodes[node] = true
	return node, nil
}

func (c *memConn) Children(path string) ([]string, *zk.Stat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for n := range c.nodes {
		if rest, ok := strings.CutPrefix(n, path+"/"); ok && !strings.Contains(rest, "/") {
			out = append(out, rest)
		}
	}
	return out, &zk.Stat{}, nil
}

func (c *memConn) Delete(path string, _ int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.nodes[path] {
		return zk.ErrNoNode
	}
	delete(c.nodes, path)
	for _, ch := range c.watchers[path] {
		ch <- zk.Event{Type: zk.EventNodeDeleted, Path: path}
	}
	delete(c.watchers, path)
	return nil
}

func (c *memConn) lockNodes(resource string) []string {
	children, _, _ := c.Children(lockRoot + "/" + resource)
	return children
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestDistributedLockIsExclusive(t *testing.T) {
	conn := newMemConn()
	first, err := NewDistributedLock(conn, "publisher")
	require.NoError(t, err)
	second, err := NewDistributedLock(conn, "publisher")
	require.NoError(t, err)
	ctx := context.Background()

	lostFirst, err := first.Lock(ctx)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		if _, err := second.Lock(ctx); err == nil {
			close(acquired)
		}
	}()
	assert.Never(t, func() bool { return isClosed(acquired) }, 50*time.Millisecond, 5*time.Millisecond)

	require.NoError(t, first.Unlock())
	require.Eventually(t, func() bool { return isClosed(acquired) }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return isClosed(lostFirst) }, time.Second, 5*time.Millisecond)
	require.NoError(t, second.Unlock())
	assert.Empty(t, conn.lockNodes("publisher"))
}

func TestDistributedLockReportsLostNode(t *testing.T) {
	conn := newMemConn()
	lock, err := NewDistributedLock(conn, "publisher")
	require.NoError(t, err)

	lost, err := lock.Lock(context.Background())
	require.NoError(t, err)
	assert.False(t, isClosed(lost))

	// 会话过期时临时节点由服务端删除
	nodes := conn.lockNodes("publisher")
	require.Len(t, nodes, 1)
	require.NoError(t, conn.Delete(lockRoot+"/publisher/"+nodes[0], -1))

	assert.Eventually(t, func() bool { return isClosed(lost) }, time.Second, 5*time.Millisecond)
	assert.NoError(t, lock.Unlock())
}

func TestDistributedLockHonoursContext(t *testing.T) {
	conn := newMemConn()
	holder, err := NewDistributedLock(conn, "publisher")
	require.NoError(t, err)
	waiter, err := NewDistributedLock(conn, "publisher")
	require.NoError(t, err)

	_, err = holder.Lock(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = waiter.Lock(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// 放弃竞争的节点已删除，只剩持锁者
	assert.Len(t, conn.lockNodes("publisher"), 1)
	assert.Error(t, waiter.Unlock())
	assert.NoError(t, holder.Unlock())
}

func TestSequenceOrdersProtectedNodes(t *testing.T) {
	assert.Less(t, sequence("_c_ffff-lock-0000000002"), sequence("_c_0000-lock-0000000010"))
	assert.Greater(t, sequence("garbage"), sequence("lock-0000000001"))
}
