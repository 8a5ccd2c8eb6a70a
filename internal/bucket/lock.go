package bucket

import "sync"

// Locker 是按 key 互斥的注入能力：Acquire 阻塞直到拿到锁，Release 与
// Acquire 一一配对。实现可替换为文件锁或分布式锁而无需改动缓存逻辑。
type Locker interface {
	Acquire(key string)
	Release(key string)
}

// KeyedMutex 是进程内默认实现：按需创建、引用计数归零即回收的互斥锁表，
// 避免为每个出现过的 key 常驻一把锁。
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex 构造空的锁表。
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Acquire 阻塞直到 key 对应的锁可用。
func (m *KeyedMutex) Acquire(key string) {
	m.mu.Lock()
	lock := m.locks[key]
	if lock == nil {
		lock = &keyLock{}
		m.locks[key] = lock
	}
	lock.refs++
	m.mu.Unlock()

	lock.mu.Lock()
}

// Release 释放 key 对应的锁；最后一个持有者离开时回收表项。
func (m *KeyedMutex) Release(key string) {
	m.mu.Lock()
	lock := m.locks[key]
	if lock == nil {
		m.mu.Unlock()
		return
	}
	lock.refs--
	if lock.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()

	lock.mu.Unlock()
}
