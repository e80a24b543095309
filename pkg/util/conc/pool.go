// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conc

import (
	"time"

	"github.com/cockroachdb/errors"
	ants "github.com/panjf2000/ants/v2"

	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

// Pool 是对 ants.Pool 的封装，容量即允许同时运行的任务数。
//
// 说明：
//   - 非阻塞模式下池满时 Submit 立即返回 merr.ErrServiceTooManyRequests；
//   - 阻塞模式下 Submit 会等待空闲 worker。
type Pool struct {
	inner *ants.Pool
	opt   *poolOption
}

// NewPool 创建一个容量为 cap 的协程池。
func NewPool(cap int, opts ...PoolOption) *Pool {
	opt := defaultPoolOption()
	for _, o := range opts {
		o(opt)
	}

	pool, err := ants.NewPool(cap, opt.antsOptions()...)
	if err != nil {
		panic(err)
	}

	return &Pool{
		inner: pool,
		opt:   opt,
	}
}

// Submit 将任务提交到池中执行。
func (pool *Pool) Submit(task func()) error {
	err := pool.inner.Submit(func() {
		if pool.opt.preHandler != nil {
			pool.opt.preHandler()
		}
		task()
	})
	if errors.Is(err, ants.ErrPoolOverload) {
		return merr.WrapErrTooManyRequests(int32(pool.inner.Cap()), "conc pool overloaded")
	}
	if errors.Is(err, ants.ErrPoolClosed) {
		return merr.WrapErrServiceNotReady("conc pool", "closed")
	}
	return err
}

// Cap 返回池容量。
func (pool *Pool) Cap() int {
	return pool.inner.Cap()
}

// Running 返回正在执行任务的 worker 数量。
func (pool *Pool) Running() int {
	return pool.inner.Running()
}

// Free 返回空闲 worker 数量。
func (pool *Pool) Free() int {
	return pool.inner.Free()
}

// Release 关闭协程池，不等待正在执行的任务。
func (pool *Pool) Release() {
	pool.inner.Release()
}

// ReleaseTimeout 关闭协程池，并在 timeout 内等待所有 worker 退出。
func (pool *Pool) ReleaseTimeout(timeout time.Duration) error {
	return pool.inner.ReleaseTimeout(timeout)
}
