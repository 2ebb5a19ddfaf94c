package calendar

import (
	"sync"
	"sync/atomic"

	"campusnexus/internal/service/promotion/domain"
)

// Store 持有当前生效的目录，热更新时整体原子替换。
// 读者总能拿到一份完整的目录，校验失败的新目录不会生效。
type Store struct {
	current atomic.Pointer[Catalog]
	rules   domain.RuleEngine

	mu        sync.Mutex
	listeners []func(*Catalog)
}

// NewStore 用初始目录创建 Store。
func NewStore(initial *Catalog, rules domain.RuleEngine) *Store {
	s := &Store{rules: rules}
	s.current.Store(initial)
	return s
}

// Current 返回当前生效的目录。
func (s *Store) Current() *Catalog {
	return s.current.Load()
}

// Reload 解析并校验新的 YAML 目录，成功后替换并通知监听者。
func (s *Store) Reload(data []byte) (*Catalog, error) {
	catalog, err := LoadCatalog(data, s.rules)
	if err != nil {
		return nil, err
	}
	s.current.Store(catalog)

	s.mu.Lock()
	listeners := append([]func(*Catalog){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(catalog)
	}
	return catalog, nil
}

// OnChange 注册目录变更回调。
func (s *Store) OnChange(fn func(*Catalog)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
