package application

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-relay/internal/chat"
	"github.com/lk2023060901/danmu-chat-relay/internal/json"
	zlog "github.com/lk2023060901/danmu-chat-relay/pkg/log"
)

// newOpsHandler builds the ops HTTP surface:
//   - /metrics: prometheus exposition of reg;
//   - /debug/chat: JSON snapshot of the chat registry;
//   - /debug/pprof/: runtime profiles.
func newOpsHandler(reg *prometheus.Registry, registry *chat.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/chat", func(w http.ResponseWriter, r *http.Request) {
		data, err := json.Marshal(registry.Snapshot())
		if err != nil {
			zlog.Ctx(r.Context()).Warn("encode registry snapshot failed", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	})
	// pprof handlers are registered on http.DefaultServeMux by pkg/metrics.
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	return mux
}
