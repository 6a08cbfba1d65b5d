package vulkan

import "sync"

type lockGroup string

const (
	resourceManagement      lockGroup = "resource_management"
	commandBufferManagement lockGroup = "command_buffer_management"
	pipelineManagement      lockGroup = "pipeline_management"
	memoryManagement        lockGroup = "memory_management"
	descriptorManagement    lockGroup = "descriptor_management"
	swapchainManagement     lockGroup = "swapchain_management"
)

// lockPool serializes Vulkan calls per concern. Queue submission and
// presentation additionally serialize per queue family, since queues are
// externally synchronized objects.
type lockPool struct {
	mu    sync.Mutex
	locks map[lockGroup]*sync.Mutex

	queueLocks map[uint32]*sync.Mutex
}

func newLockPool() *lockPool {
	return &lockPool{
		locks:      make(map[lockGroup]*sync.Mutex),
		queueLocks: make(map[uint32]*sync.Mutex),
	}
}

func (lp *lockPool) lockFor(group lockGroup) *sync.Mutex {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if _, ok := lp.locks[group]; !ok {
		lp.locks[group] = &sync.Mutex{}
	}
	return lp.locks[group]
}

func (lp *lockPool) SafeCall(group lockGroup, fn func() error) error {
	l := lp.lockFor(group)
	l.Lock()
	defer l.Unlock()
	return fn()
}

func (lp *lockPool) queueLockFor(family uint32) *sync.Mutex {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if _, ok := lp.queueLocks[family]; !ok {
		lp.queueLocks[family] = &sync.Mutex{}
	}
	return lp.queueLocks[family]
}

func (lp *lockPool) SafeQueueCall(family uint32, fn func() error) error {
	l := lp.queueLockFor(family)
	l.Lock()
	defer l.Unlock()
	return fn()
}
