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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	sessionSubsystem  = "session"
	roomSubsystem     = "room"
	deliverySubsystem = "delivery"
	acceptSubsystem   = "acceptor"
)

var (
	ActiveSessions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: relayNamespace,
		Subsystem: sessionSubsystem,
		Name:      "active",
		Help:      "当前已注册的会话数量",
	}, []string{transportLabelName})

	SessionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: relayNamespace,
		Subsystem: sessionSubsystem,
		Name:      "duration_seconds",
		Help:      "会话从建立到释放的持续时间",
		Buckets:   sessionBuckets,
	}, []string{transportLabelName})

	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: relayNamespace,
		Subsystem: sessionSubsystem,
		Name:      "commands_total",
		Help:      "按命令名统计的已处理输入行数量",
	}, []string{commandLabelName})

	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: relayNamespace,
		Subsystem: roomSubsystem,
		Name:      "active",
		Help:      "当前至少有一个成员的房间数量",
	})

	DeliveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: relayNamespace,
		Subsystem: deliverySubsystem,
		Name:      "enqueued_total",
		Help:      "成功放入收件箱的消息数量",
	}, []string{kindLabelName})

	DroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: relayNamespace,
		Subsystem: deliverySubsystem,
		Name:      "dropped_total",
		Help:      "因收件箱已满或已关闭而被丢弃的消息数量",
	}, []string{kindLabelName, reasonLabelName})

	AcceptedConnections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: relayNamespace,
		Subsystem: acceptSubsystem,
		Name:      "accepted_total",
		Help:      "已接受的连接数量",
	}, []string{transportLabelName})

	RejectedConnections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: relayNamespace,
		Subsystem: acceptSubsystem,
		Name:      "rejected_total",
		Help:      "因连接数达到上限而被拒绝的连接数量",
	}, []string{transportLabelName})
)

func registerRelayMetrics(r prometheus.Registerer) {
	r.MustRegister(ActiveSessions)
	r.MustRegister(SessionDuration)
	r.MustRegister(CommandsTotal)
	r.MustRegister(ActiveRooms)
	r.MustRegister(DeliveredTotal)
	r.MustRegister(DroppedTotal)
	r.MustRegister(AcceptedConnections)
	r.MustRegister(RejectedConnections)
}
