package contract

import "context"

// Request: 单次调用的输入载荷。
// Control 为 32 字节控制块（两段小端 16 字节整数）；Blobs 为附加数据块，本协议要求为空。
// 调用方拥有全部字节；实现方只读、不保留引用。
type Request struct {
	Control []byte
	Blobs   [][]byte
}

// Response: 单次调用的输出载荷；成功时恰好一个结果块，所有权移交调用方。
type Response struct {
	Blobs [][]byte
}

// Allocator: 输出缓冲区分配能力。Alloc 必须返回长度恰为 n 的新切片。
type Allocator interface {
	Alloc(n int) []byte
}

// AllocatorFunc 适配普通函数为 Allocator。
type AllocatorFunc func(n int) []byte

func (f AllocatorFunc) Alloc(n int) []byte { return f(n) }

// HeapAllocator: 默认分配器（make）。
var HeapAllocator Allocator = AllocatorFunc(func(n int) []byte { return make([]byte, n) })

// Worker: 以 Request 为单位执行一次计算，返回结果块。
// 单次调用、同步返回；应尊重 ctx 取消（仅在调用边界检查）。
// 约束：
//  1. 调用原子：要么返回一个完整结果块，要么返回错误且无结果；
//  2. 实现方不持有跨调用可变状态（测试桩除外）；
//  3. 临时性失败以 ErrWorkerFailed 包装，供宿主层重试判定。
type Worker interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}
